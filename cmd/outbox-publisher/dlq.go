package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
)

type dlqAdmin interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, id uuid.UUID) (models.OutboxEvent, error)
}

const dlqUsage = "usage: outbox-publisher dlq list [max_attempts|non_retryable] [limit] | dlq requeue <dlq-id>"

// runDLQCommand serves the operator subcommands for parked events.
func runDLQCommand(ctx context.Context, repo dlqAdmin, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", dlqUsage)
	}
	switch args[0] {
	case "list":
		filter, err := parseDLQFilter(args[1:])
		if err != nil {
			return err
		}
		rows, err := repo.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		return writeDLQRows(out, rows)
	case "requeue":
		if len(args) != 2 {
			return fmt.Errorf("%s", dlqUsage)
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid dlq id %q: %w", args[1], err)
		}
		row, err := repo.Requeue(ctx, id)
		if err != nil {
			return fmt.Errorf("requeue %s: %w", id, err)
		}
		_, err = fmt.Fprintf(out, "requeued %s as outbox row %s\n", id, row.ID)
		return err
	}
	return fmt.Errorf("unknown dlq command %q; %s", args[0], dlqUsage)
}

func parseDLQFilter(args []string) (outbox.DLQFilter, error) {
	var filter outbox.DLQFilter
	for _, arg := range args {
		if limit, err := strconv.Atoi(arg); err == nil {
			if limit <= 0 {
				return filter, fmt.Errorf("limit must be positive")
			}
			filter.Limit = limit
			continue
		}
		reason, err := enums.ParseOutboxDLQErrorReason(arg)
		if err != nil {
			return filter, err
		}
		filter.Reason = reason
	}
	return filter, nil
}

func writeDLQRows(out io.Writer, rows []models.OutboxDLQ) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVENT_TYPE\tLOAN_GROUP\tREASON\tATTEMPTS\tFAILED_AT\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			row.ID, row.EventType, row.AggregateID, row.ErrorReason,
			row.AttemptCount, row.FailedAt.UTC().Format(time.RFC3339), msg)
	}
	return w.Flush()
}
