package event

import "github.com/google/uuid"

// OutcomeType labels the loan lifecycle notifications published downstream
type OutcomeType string

const (
	OutcomeLoanIssued    OutcomeType = "loan_issued"
	OutcomeLoanRepaid    OutcomeType = "loan_repaid"
	OutcomeLoanDefaulted OutcomeType = "loan_defaulted"
)

// LoanOutcome is the outbound notification emitted after a loan transitions.
// Consumers (risk dashboards, settlement services) subscribe to these rather
// than replaying the raw event log.
type LoanOutcome struct {
	Type             OutcomeType `json:"type"`
	LoanID           uuid.UUID   `json:"loan_id"`
	Pool             uuid.UUID   `json:"pool_id"`
	Borrower         uuid.UUID   `json:"borrower_id"`
	Asset            string      `json:"asset"`
	Principal        int64       `json:"principal"`
	Fee              int64       `json:"fee"`
	Collateral       int64       `json:"collateral"`
	CollateralSeized int64       `json:"collateral_seized,omitempty"`
	Shortfall        int64       `json:"shortfall,omitempty"`
	ExpirySlot       int64       `json:"expiry_slot"`
	ResolvedSlot     int64       `json:"resolved_slot,omitempty"`
	MultiplierBps    int64       `json:"multiplier_bps"`
	Sequence         int64       `json:"sequence"`
}
