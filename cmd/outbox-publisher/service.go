package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
	pollJitter         = 0.25
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

// publishGuard remembers event ids already handed to Pub/Sub so a row whose
// publish succeeded but whose commit did not is not sent twice.
type publishGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	Guard            publishGuard
}

func (p ServiceParams) validate() error {
	missing := func(name string) error { return fmt.Errorf("%s is required", name) }
	switch {
	case p.Config == nil:
		return missing("config")
	case p.Logger == nil:
		return missing("logger")
	case p.DB == nil:
		return missing("database client")
	case p.PubSub == nil:
		return missing("pubsub client")
	case p.Repository == nil:
		return missing("outbox repository")
	case p.Registry == nil:
		return missing("event registry")
	case p.DLQRepository == nil:
		return missing("dlq repository")
	}
	return nil
}

// Service drains outbox_events into the loan topics. A row is retried until
// it is published, hits a non-retryable error, or exhausts maxAttempts; the
// last two outcomes move it to outbox_dlq.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	metrics          *metrics.OutboxMetrics
	guard            publishGuard
	publisherFactory publisherFactory
	publishers       map[string]publisher
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	cfg := params.Config.Outbox

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		metrics:          params.Metrics,
		guard:            params.Guard,
		publisherFactory: factory,
		publishers:       map[string]publisher{},
		batchSize:        positive(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positive(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positive(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		now:              time.Now,
	}, nil
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. Idle polls wait a jittered poll interval;
// failed batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	idle := s.idleBackoff()
	retry := s.retryBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = retry.NextBackOff()
		case processed:
			retry.Reset()
			continue
		default:
			retry.Reset()
			wait = idle.NextBackOff()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// idleBackoff yields the poll interval with a small random spread so
// replicas do not poll in lockstep.
func (s *Service) idleBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.pollInterval
	b.MaxInterval = s.pollInterval
	b.Multiplier = 1
	b.RandomizationFactor = pollJitter
	b.Reset()
	return b
}

func (s *Service) retryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.pollInterval
	b.MaxInterval = maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = pollJitter
	b.Reset()
	return b
}

// processBatch claims one batch and settles every row in a single transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

// Stop flushes buffered messages on every publisher handed out so far.
func (s *Service) Stop() {
	for _, pub := range s.publishers {
		if stopper, ok := pub.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
