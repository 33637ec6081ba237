package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

type overdueCounter interface {
	CountOverdueGroups(ctx context.Context, today time.Time) (int64, error)
}

type overdueGauge interface {
	SetOverdueGroups(count int64)
}

type OverdueSnapshotJobParams struct {
	Logger   *logger.Logger
	Loans    overdueCounter
	Gauge    overdueGauge
	Location *time.Location
}

// NewOverdueSnapshotJob counts open loan groups past their due date and
// exports the count. It never writes loans or emits events.
func NewOverdueSnapshotJob(params OverdueSnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loans repository required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &overdueSnapshotJob{
		logg:  params.Logger,
		loans: params.Loans,
		gauge: params.Gauge,
		loc:   loc,
		now:   time.Now,
	}, nil
}

type overdueSnapshotJob struct {
	logg  *logger.Logger
	loans overdueCounter
	gauge overdueGauge
	loc   *time.Location
	now   func() time.Time
}

func (j *overdueSnapshotJob) Name() string { return "overdue-snapshot" }

func (j *overdueSnapshotJob) Run(ctx context.Context) error {
	local := j.now().In(j.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	count, err := j.loans.CountOverdueGroups(ctx, today)
	if err != nil {
		return fmt.Errorf("count overdue loan groups: %w", err)
	}
	if j.gauge != nil {
		j.gauge.SetOverdueGroups(count)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"today":               today.Format(time.DateOnly),
		"overdue_loan_groups": count,
	})
	j.logg.Info(logCtx, "overdue snapshot recorded")
	return nil
}
