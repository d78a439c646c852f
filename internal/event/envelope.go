package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolInitialize
	EventTypeTokenDeposit
	EventTypeTokenWithdraw
	EventTypeLiquidityDeposit
	EventTypeStakeDeposit
	EventTypeStakeWithdraw
	EventTypeFlashLoanRequest
	EventTypeFlashLoanRepay
	EventTypeSlotTick
)

// Event origin markers. Stream events carry strict per-partition source
// sequences; admin injections are ordered by arrival and replayed the same way.
const (
	OriginStream = "stream"
	OriginAdmin  = "admin"
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pool context (nullable for global events)
	PoolID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// OriginStream or OriginAdmin; decides how replay re-validates ordering
	Origin string

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PoolID returns the pool context (nil for global events)
	PoolID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypePoolInitialize:
		return "PoolInitialize"
	case EventTypeTokenDeposit:
		return "TokenDeposit"
	case EventTypeTokenWithdraw:
		return "TokenWithdraw"
	case EventTypeLiquidityDeposit:
		return "LiquidityDeposit"
	case EventTypeStakeDeposit:
		return "StakeDeposit"
	case EventTypeStakeWithdraw:
		return "StakeWithdraw"
	case EventTypeFlashLoanRequest:
		return "FlashLoanRequest"
	case EventTypeFlashLoanRepay:
		return "FlashLoanRepay"
	case EventTypeSlotTick:
		return "SlotTick"
	default:
		return "Unknown"
	}
}
