package event

import (
	"time"

	"github.com/google/uuid"
)

// FlashLoanRequest asks the pool to fund a collateral-backed flash loan.
// The loan ID is derived deterministically by the core, not supplied here.
type FlashLoanRequest struct {
	RequestID  uuid.UUID
	Pool       uuid.UUID
	BorrowerID uuid.UUID
	Principal  int64
	Collateral int64 // Collateral the borrower offers to escrow
	Sequence   int64
	Timestamp  time.Time
}

func (r *FlashLoanRequest) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *FlashLoanRequest) EventType() EventType {
	return EventTypeFlashLoanRequest
}

func (r *FlashLoanRequest) PoolID() *string {
	s := r.Pool.String()
	return &s
}

func (r *FlashLoanRequest) SourceSequence() int64 {
	return r.Sequence
}

// FlashLoanRepay settles an outstanding loan. Before the expiry slot only the
// borrower may repay; after expiry any caller resolves the loan as a default.
type FlashLoanRepay struct {
	EventID   uuid.UUID
	Pool      uuid.UUID
	LoanID    uuid.UUID
	CallerID  uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (r *FlashLoanRepay) IdempotencyKey() string {
	return r.EventID.String()
}

func (r *FlashLoanRepay) EventType() EventType {
	return EventTypeFlashLoanRepay
}

func (r *FlashLoanRepay) PoolID() *string {
	s := r.Pool.String()
	return &s
}

func (r *FlashLoanRepay) SourceSequence() int64 {
	return r.Sequence
}
