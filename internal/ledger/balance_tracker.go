package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites an account balance (snapshot restore only)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// GetWalletBalance returns a user's liquid wallet balance
func (bt *BalanceTracker) GetWalletBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeWallet, assetID))
}

// GetPoolLiquidity returns the base-token balance a pool can lend from
func (bt *BalanceTracker) GetPoolLiquidity(poolID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPoolAccountKey(poolID, SubTypePoolLiquidity, assetID))
}

// GetStakeVaultBalance returns staked principal plus undistributed rewards
func (bt *BalanceTracker) GetStakeVaultBalance(poolID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID))
}

// GetEscrowBalance returns the collateral held for a single open loan
func (bt *BalanceTracker) GetEscrowBalance(loanID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewEscrowAccountKey(loanID, assetID))
}

// === Invariant Checks ===

// ValidateSufficientWallet checks the user can fund an outflow of `required`
func (bt *BalanceTracker) ValidateSufficientWallet(userID uuid.UUID, assetID AssetID, required int64) error {
	available := bt.GetWalletBalance(userID, assetID)
	if available < required {
		return fmt.Errorf("insufficient wallet balance: have=%d, need=%d", available, required)
	}
	return nil
}

// ValidateSufficientLiquidity checks the pool can fund a loan of `required`
func (bt *BalanceTracker) ValidateSufficientLiquidity(poolID uuid.UUID, assetID AssetID, required int64) error {
	available := bt.GetPoolLiquidity(poolID, assetID)
	if available < required {
		return fmt.Errorf("insufficient pool liquidity: have=%d, need=%d", available, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
