package event

import (
	"time"

	"github.com/google/uuid"
)

// TokenDeposit credits a user's wallet from the external custody boundary
type TokenDeposit struct {
	TransferID uuid.UUID
	UserID     uuid.UUID
	Asset      string
	Amount     int64 // Base units
	Sequence   int64
	Timestamp  time.Time
}

func (d *TokenDeposit) IdempotencyKey() string {
	return d.TransferID.String()
}

func (d *TokenDeposit) EventType() EventType {
	return EventTypeTokenDeposit
}

func (d *TokenDeposit) PoolID() *string {
	return nil // Global event
}

func (d *TokenDeposit) SourceSequence() int64 {
	return d.Sequence
}

// TokenWithdraw debits a user's wallet to the external custody boundary
type TokenWithdraw struct {
	TransferID uuid.UUID
	UserID     uuid.UUID
	Asset      string
	Amount     int64
	Sequence   int64
	Timestamp  time.Time
}

func (w *TokenWithdraw) IdempotencyKey() string {
	return w.TransferID.String()
}

func (w *TokenWithdraw) EventType() EventType {
	return EventTypeTokenWithdraw
}

func (w *TokenWithdraw) PoolID() *string {
	return nil
}

func (w *TokenWithdraw) SourceSequence() int64 {
	return w.Sequence
}
