package query

import "github.com/google/uuid"

// BalanceResponse is a user's wallet balance for one asset.
type BalanceResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Balance      int64     `json:"balance"`
	Decimal      string    `json:"balance_decimal"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// PoolResponse summarizes one pool's accounts and loan counters. Treasury
// fees accrue to the treasury identity's wallet, queryable via GetBalance.
type PoolResponse struct {
	PoolID         uuid.UUID `json:"pool_id"`
	Asset          string    `json:"asset"`
	Liquidity      int64     `json:"liquidity"`
	StakeVault     int64     `json:"stake_vault"`
	LoansOpen      int64     `json:"loans_open"`
	LoansRepaid    int64     `json:"loans_repaid"`
	LoansDefaulted int64     `json:"loans_defaulted"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// LoanResponse is one flash loan's projected state.
type LoanResponse struct {
	LoanID           uuid.UUID `json:"loan_id"`
	PoolID           uuid.UUID `json:"pool_id"`
	BorrowerID       uuid.UUID `json:"borrower_id"`
	Asset            string    `json:"asset"`
	Principal        int64     `json:"principal"`
	Fee              int64     `json:"fee"`
	Collateral       int64     `json:"collateral"`
	ExpirySlot       int64     `json:"expiry_slot"`
	Status           string    `json:"status"`
	ResolvedSlot     *int64    `json:"resolved_slot,omitempty"`
	CollateralSeized int64     `json:"collateral_seized"`
	Shortfall        int64     `json:"shortfall"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// ReputationResponse is a borrower's standing.
type ReputationResponse struct {
	BorrowerID     uuid.UUID `json:"borrower_id"`
	MultiplierBps  int64     `json:"multiplier_bps"`
	LoansRepaid    int64     `json:"loans_repaid"`
	LoansDefaulted int64     `json:"loans_defaulted"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
