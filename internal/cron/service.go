package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service. JobTimeout bounds a single job
// run; zero leaves jobs bounded only by the parent context.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding Lock.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	clock      func() time.Time
}

// CycleReport summarises one pass over the registry.
type CycleReport struct {
	Skipped   bool
	Succeeded []string
	Failed    []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	var jobs []Job
	if params.Registry != nil {
		jobs = params.Registry.Jobs()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		jobs:       jobs,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
		clock:      time.Now,
	}, nil
}

// Run executes a cycle immediately, then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single locked cycle. Only lock failures are returned;
// job errors are logged and counted so one failing job does not starve the rest.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.metrics.IncSkipped()
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		if s.runJob(ctx, job) {
			report.Succeeded = append(report.Succeeded, job.Name())
		} else {
			report.Failed = append(report.Failed, job.Name())
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_succeeded": len(report.Succeeded),
		"jobs_failed":    len(report.Failed),
	}), "scheduled run complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"event": "cron.job", "job": name})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	started := s.clock()
	err := invoke(jobCtx, job)
	elapsed := s.clock().Sub(started)

	s.metrics.ObserveRun(name, elapsed, err, started.Add(elapsed))
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return false
	}
	s.logg.Info(jobCtx, "job completed")
	return true
}

// invoke converts a job panic into an error.
func invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
