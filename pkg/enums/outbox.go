package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMovement  OutboxAggregateType = "movement"
	AggregateTransfer  OutboxAggregateType = "transfer"
	AggregateBalance   OutboxAggregateType = "balance"
	AggregateCommodity OutboxAggregateType = "commodity"
	AggregateWarehouse OutboxAggregateType = "warehouse"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMovement,
	AggregateTransfer,
	AggregateBalance,
	AggregateCommodity,
	AggregateWarehouse,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventMovementRecorded   OutboxEventType = "movement_recorded"
	EventTransferRecorded   OutboxEventType = "transfer_recorded"
	EventTransferReversed   OutboxEventType = "transfer_reversed"
	EventBalanceRebuilt     OutboxEventType = "balance_rebuilt"
	EventCommodityCreated   OutboxEventType = "commodity_created"
	EventCommodityRetired   OutboxEventType = "commodity_retired"
	EventWarehouseCreated   OutboxEventType = "warehouse_created"
	EventWarehouseRetired   OutboxEventType = "warehouse_retired"
	EventStaleBalancesFound OutboxEventType = "stale_balances_found"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMovementRecorded,
	EventTransferRecorded,
	EventTransferReversed,
	EventBalanceRebuilt,
	EventCommodityCreated,
	EventCommodityRetired,
	EventWarehouseCreated,
	EventWarehouseRetired,
	EventStaleBalancesFound,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
