package enums

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const AggregateLoanGroup OutboxAggregateType = "loan_group"

var aggregateTypes = valueSet[OutboxAggregateType]{AggregateLoanGroup}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to outbox_events.event_type. The values double as the
// event_type carried in published loan payloads and are case sensitive.
type OutboxEventType string

const (
	EventLibraryBorrowed OutboxEventType = "LIBRARY_BORROWED"
	EventLibraryReturned OutboxEventType = "LIBRARY_RETURNED"
)

var eventTypes = valueSet[OutboxEventType]{EventLibraryBorrowed, EventLibraryReturned}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}
