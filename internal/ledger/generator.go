package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Add reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence aligns the generator with the engine's event sequence
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateTokenDeposit credits a user's wallet from the external boundary.
// Moves funds: external:deposits → user:wallet
func (jg *JournalGenerator) GenerateTokenDeposit(
	userID uuid.UUID,
	depositID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(depositID.String(), timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeTokenDeposit)

	jg.sequence++
	return batch, nil
}

// GenerateTokenWithdraw debits a user's wallet to the external boundary.
// Pre-check: wallet must cover the full amount.
func (jg *JournalGenerator) GenerateTokenWithdraw(
	userID uuid.UUID,
	withdrawalID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(withdrawalID.String(), timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeTokenWithdraw)

	jg.sequence++
	return batch, nil
}

// GenerateLiquidityDeposit moves base tokens into the pool's lendable balance.
// Moves funds: user:wallet → pool:liquidity
func (jg *JournalGenerator) GenerateLiquidityDeposit(
	userID uuid.UUID,
	poolID uuid.UUID,
	eventRef string,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("liquidity deposit pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)

	jg.appendJournal(batch,
		NewPoolAccountKey(poolID, SubTypePoolLiquidity, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeLiquidityDeposit)

	jg.sequence++
	return batch, nil
}

// GenerateStakeDeposit moves tokens from a user's wallet into the stake vault.
// Growing a position settles rewards accrued so far, so the batch may carry a
// second leg paying those out of the vault.
// Moves funds: user:wallet → pool:stake_vault (+ pool:stake_vault → user:wallet)
func (jg *JournalGenerator) GenerateStakeDeposit(
	userID uuid.UUID,
	poolID uuid.UUID,
	eventRef string,
	amount int64,
	pendingRewards int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("stake pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)

	jg.appendJournal(batch,
		NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeStakeDeposit)

	if pendingRewards > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(userID, SubTypeWallet, assetID),
			NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID),
			assetID, pendingRewards, JournalTypeRewardClaim)
	}

	jg.sequence++
	return batch, nil
}

// GenerateStakeWithdraw returns staked principal plus any settled rewards to the wallet.
// Moves funds: pool:stake_vault → user:wallet
func (jg *JournalGenerator) GenerateStakeWithdraw(
	userID uuid.UUID,
	poolID uuid.UUID,
	eventRef string,
	principal int64,
	rewards int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 2)

	if principal > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(userID, SubTypeWallet, assetID),
			NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID),
			assetID, principal, JournalTypeStakeWithdraw)
	}
	if rewards > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(userID, SubTypeWallet, assetID),
			NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID),
			assetID, rewards, JournalTypeRewardClaim)
	}

	jg.sequence++
	return batch, nil
}

// GenerateLoanIssued escrows the borrower's collateral and funds a loan in one batch.
// Journal 1: user:wallet → pool:<loan>:escrow (collateral)
// Journal 2: pool:liquidity → user:wallet (principal)
// Collateral must come from funds the borrower already holds: the escrow leg
// runs before the principal payout, so the loan can never finance its own
// collateral. Pre-checks mirror the issuance preconditions so a malformed
// handler call can never produce a batch that drives an account negative.
func (jg *JournalGenerator) GenerateLoanIssued(
	borrowerID uuid.UUID,
	poolID uuid.UUID,
	loanID uuid.UUID,
	principal int64,
	collateral int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientLiquidity(poolID, assetID, principal); err != nil {
		return nil, fmt.Errorf("loan pre-check failed: %w", err)
	}
	if err := jg.balanceTracker.ValidateSufficientWallet(borrowerID, assetID, collateral); err != nil {
		return nil, fmt.Errorf("loan pre-check failed: %w", err)
	}

	batch := jg.newBatch(loanID.String(), timestamp, 2)

	jg.appendJournal(batch,
		NewEscrowAccountKey(loanID, assetID),
		NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
		assetID, collateral, JournalTypeCollateralEscrow)

	jg.appendJournal(batch,
		NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
		NewPoolAccountKey(poolID, SubTypePoolLiquidity, assetID),
		assetID, principal, JournalTypeLoanPrincipal)

	jg.sequence++
	return batch, nil
}

// GenerateLoanRepaid settles a loan on time: principal returns to the pool,
// the fee splits between the treasury identity's wallet and the stake vault,
// and escrowed collateral releases back to the borrower.
func (jg *JournalGenerator) GenerateLoanRepaid(
	borrowerID uuid.UUID,
	poolID uuid.UUID,
	treasuryID uuid.UUID,
	loanID uuid.UUID,
	principal int64,
	treasuryFee int64,
	stakerFee int64,
	collateral int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	required := principal + treasuryFee + stakerFee
	if err := jg.balanceTracker.ValidateSufficientWallet(borrowerID, assetID, required); err != nil {
		return nil, fmt.Errorf("repay pre-check failed: %w", err)
	}

	eventRef := fmt.Sprintf("%s:repay", loanID)
	batch := jg.newBatch(eventRef, timestamp, 4)

	jg.appendJournal(batch,
		NewPoolAccountKey(poolID, SubTypePoolLiquidity, assetID),
		NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
		assetID, principal, JournalTypeRepayPrincipal)

	if treasuryFee > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(treasuryID, SubTypeWallet, assetID),
			NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
			assetID, treasuryFee, JournalTypeFeeTreasury)
	}

	if stakerFee > 0 {
		jg.appendJournal(batch,
			NewPoolAccountKey(poolID, SubTypePoolStakeVault, assetID),
			NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
			assetID, stakerFee, JournalTypeFeeStakers)
	}

	if collateral > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
			NewEscrowAccountKey(loanID, assetID),
			assetID, collateral, JournalTypeCollateralRelease)
	}

	jg.sequence++
	return batch, nil
}

// GenerateLoanDefaulted resolves an expired loan from escrow alone: the pool
// seizes up to principal+fee of the collateral and any surplus returns to the
// borrower. The seized amount never exceeds what escrow holds, so the batch
// cannot overdraw the escrow account.
func (jg *JournalGenerator) GenerateLoanDefaulted(
	borrowerID uuid.UUID,
	poolID uuid.UUID,
	loanID uuid.UUID,
	seized int64,
	surplus int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	escrow := jg.balanceTracker.GetEscrowBalance(loanID, assetID)
	if seized+surplus != escrow {
		return nil, fmt.Errorf("default pre-check failed: seized %d + surplus %d != escrow %d",
			seized, surplus, escrow)
	}

	eventRef := fmt.Sprintf("%s:default", loanID)
	batch := jg.newBatch(eventRef, timestamp, 2)

	if seized > 0 {
		jg.appendJournal(batch,
			NewPoolAccountKey(poolID, SubTypePoolLiquidity, assetID),
			NewEscrowAccountKey(loanID, assetID),
			assetID, seized, JournalTypeCollateralForfeit)
	}

	if surplus > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(borrowerID, SubTypeWallet, assetID),
			NewEscrowAccountKey(loanID, assetID),
			assetID, surplus, JournalTypeCollateralSurplus)
	}

	jg.sequence++
	return batch, nil
}
