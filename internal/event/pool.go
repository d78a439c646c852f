package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PoolInitialize provisions a lending pool: fee rate, base asset, admin,
// the treasury identity that collects the protocol's fee share, and the
// initial borrower allow-list.
type PoolInitialize struct {
	EventID    uuid.UUID
	Pool       uuid.UUID
	Admin      uuid.UUID
	Treasury   uuid.UUID
	Asset      string
	FeeRateBps int64
	AllowList  []uuid.UUID
	Sequence   int64
	Timestamp  time.Time
}

func (p *PoolInitialize) IdempotencyKey() string {
	return p.EventID.String()
}

func (p *PoolInitialize) EventType() EventType {
	return EventTypePoolInitialize
}

func (p *PoolInitialize) PoolID() *string {
	s := p.Pool.String()
	return &s
}

func (p *PoolInitialize) SourceSequence() int64 {
	return p.Sequence
}

// SlotTick advances the protocol clock. Slot numbers come from the upstream
// sequencer; the core never reads the wall clock.
type SlotTick struct {
	Slot      int64
	Sequence  int64
	Timestamp time.Time
}

func (s *SlotTick) IdempotencyKey() string {
	return fmt.Sprintf("slot:%d", s.Slot)
}

func (s *SlotTick) EventType() EventType {
	return EventTypeSlotTick
}

func (s *SlotTick) PoolID() *string {
	return nil // Global event
}

func (s *SlotTick) SourceSequence() int64 {
	return s.Sequence
}
