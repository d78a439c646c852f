package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateWalletNonNegative checks a user's wallet never goes below zero
func (v *InvariantValidator) ValidateWalletNonNegative(userID uuid.UUID, assetID AssetID) error {
	key := NewUserAccountKey(userID, SubTypeWallet, assetID)
	return v.tracker.ValidateNonNegative(key)
}

// ValidatePoolNonNegative checks all of a pool's internal accounts stay non-negative
func (v *InvariantValidator) ValidatePoolNonNegative(poolID uuid.UUID, assetID AssetID) error {
	for _, subType := range []AccountSubType{SubTypePoolLiquidity, SubTypePoolStakeVault} {
		key := NewPoolAccountKey(poolID, subType, assetID)
		if err := v.tracker.ValidateNonNegative(key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEscrowClosed verifies a resolved loan's escrow account is empty.
// Collateral is fully released, forfeited, or split on resolution; any residual
// means the resolution batch was malformed.
func (v *InvariantValidator) ValidateEscrowClosed(loanID uuid.UUID, assetID AssetID) error {
	key := NewEscrowAccountKey(loanID, assetID)
	balance := v.tracker.GetBalance(key)

	if balance != 0 {
		return fmt.Errorf("escrow for loan %s has residual balance: %d", loanID, balance)
	}

	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
