package event

import (
	"time"

	"github.com/google/uuid"
)

// LiquidityDeposit adds base tokens to a pool in exchange for LP shares
type LiquidityDeposit struct {
	EventID    uuid.UUID
	Pool       uuid.UUID
	ProviderID uuid.UUID
	Amount     int64
	Sequence   int64
	Timestamp  time.Time
}

func (d *LiquidityDeposit) IdempotencyKey() string {
	return d.EventID.String()
}

func (d *LiquidityDeposit) EventType() EventType {
	return EventTypeLiquidityDeposit
}

func (d *LiquidityDeposit) PoolID() *string {
	s := d.Pool.String()
	return &s
}

func (d *LiquidityDeposit) SourceSequence() int64 {
	return d.Sequence
}

// StakeDeposit locks tokens in the pool's stake vault for fee rewards
type StakeDeposit struct {
	EventID   uuid.UUID
	Pool      uuid.UUID
	StakerID  uuid.UUID
	Amount    int64
	Sequence  int64
	Timestamp time.Time
}

func (s *StakeDeposit) IdempotencyKey() string {
	return s.EventID.String()
}

func (s *StakeDeposit) EventType() EventType {
	return EventTypeStakeDeposit
}

func (s *StakeDeposit) PoolID() *string {
	id := s.Pool.String()
	return &id
}

func (s *StakeDeposit) SourceSequence() int64 {
	return s.Sequence
}

// StakeWithdraw unlocks staked tokens and settles accrued rewards.
// Amount 0 claims rewards without touching the principal.
type StakeWithdraw struct {
	EventID   uuid.UUID
	Pool      uuid.UUID
	StakerID  uuid.UUID
	Amount    int64
	Sequence  int64
	Timestamp time.Time
}

func (s *StakeWithdraw) IdempotencyKey() string {
	return s.EventID.String()
}

func (s *StakeWithdraw) EventType() EventType {
	return EventTypeStakeWithdraw
}

func (s *StakeWithdraw) PoolID() *string {
	id := s.Pool.String()
	return &id
}

func (s *StakeWithdraw) SourceSequence() int64 {
	return s.Sequence
}
