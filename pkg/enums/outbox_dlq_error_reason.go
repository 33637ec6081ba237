package enums

import "strings"

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = valueSet[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }

// ParseOutboxDLQErrorReason accepts either case and dashes for underscores.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	return dlqReasons.parse("dlq reason", normalized)
}
