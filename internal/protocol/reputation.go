package protocol

import (
	fpmath "FlashPool/internal/math"

	"github.com/google/uuid"
)

// NeutralMultiplierBps is the reputation multiplier of an unseen borrower
const NeutralMultiplierBps int64 = 10_000

// ReputationBook maps borrowers to their reputation multiplier (bps).
// Unseen borrowers sit at neutral; repays nudge the multiplier up, defaults
// knock it down hard, and the clamp keeps one borrower from ever escaping
// the collateral requirement entirely.
type ReputationBook struct {
	Multipliers map[uuid.UUID]int64
	params      Params
}

func NewReputationBook(params Params) *ReputationBook {
	return &ReputationBook{
		Multipliers: make(map[uuid.UUID]int64),
		params:      params,
	}
}

// Multiplier returns the current multiplier for a borrower
func (r *ReputationBook) Multiplier(borrower uuid.UUID) int64 {
	if m, ok := r.Multipliers[borrower]; ok {
		return m
	}
	return NeutralMultiplierBps
}

// CanBorrow reports whether a borrower clears the reputation threshold
func (r *ReputationBook) CanBorrow(borrower uuid.UUID) bool {
	return r.Multiplier(borrower) >= r.params.BorrowThresholdBps
}

// OnRepay rewards an on-time repayment
func (r *ReputationBook) OnRepay(borrower uuid.UUID) int64 {
	return r.adjust(borrower, r.params.RepayStepBps)
}

// OnDefault penalizes a default
func (r *ReputationBook) OnDefault(borrower uuid.UUID) int64 {
	return r.adjust(borrower, r.params.DefaultStepBps)
}

func (r *ReputationBook) adjust(borrower uuid.UUID, step int64) int64 {
	m := r.Multiplier(borrower) + step
	m = fpmath.ClampInt64(m, r.params.MultiplierFloorBps, r.params.MultiplierCeilBps)
	r.Multipliers[borrower] = m
	return m
}
