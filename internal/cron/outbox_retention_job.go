package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

const (
	defaultPublishedRetentionDays  = 30
	defaultDeadLetterRetentionDays = 90
	defaultPurgeBatchSize          = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type deadLetterPurger interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedPurger
	// DeadLetters is optional; without it DLQ entries are kept forever.
	DeadLetters         deadLetterPurger
	Retention           int
	DeadLetterRetention int
	BatchSize           int
}

// NewOutboxRetentionJob purges delivered loan events, and optionally old DLQ
// entries, in bounded batches. Pending events are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		published:   params.Repository,
		deadLetters: params.DeadLetters,
		keepDays:    positiveOr(params.Retention, defaultPublishedRetentionDays),
		keepDLQDays: positiveOr(params.DeadLetterRetention, defaultDeadLetterRetentionDays),
		batch:       positiveOr(params.BatchSize, defaultPurgeBatchSize),
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	published   publishedPurger
	deadLetters deadLetterPurger
	keepDays    int
	keepDLQDays int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run attempts both purges even when the first one fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	cutoff := today.AddDate(0, 0, -j.keepDays)
	fields := map[string]any{"cutoff": cutoff, "retention_days": j.keepDays}

	var errs error
	events, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.published.DeletePublishedBefore(tx, cutoff, j.batch)
	})
	fields["rows_deleted"] = events
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge published outbox events: %w", err))
	}

	if j.deadLetters != nil && ctx.Err() == nil {
		dlqCutoff := today.AddDate(0, 0, -j.keepDLQDays)
		entries, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
			return j.deadLetters.DeleteFailedBefore(tx, dlqCutoff, j.batch)
		})
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_rows_deleted"] = entries
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge outbox dlq: %w", err))
		}
	}

	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

// drain runs purge in its own transaction until a batch comes back short.
func (j *outboxRetentionJob) drain(ctx context.Context, purge func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = purge(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
