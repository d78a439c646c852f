package core_test

import (
	"errors"
	"testing"
	"time"

	"FlashPool/internal/core"
	"FlashPool/internal/event"
	"FlashPool/internal/ledger"
	"FlashPool/internal/protocol"

	"github.com/google/uuid"
)

// --- Test helpers ---

const usdcID = ledger.AssetID(1)

// treasuryID collects the protocol fee share in every pool these tests build.
var treasuryID = uuid.New()

// newTestCore creates a DeterministicCore with buffered channels and no DB checker.
func newTestCore(t *testing.T) (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	t.Helper()
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c, err := core.NewDeterministicCore(0, protocol.DefaultParams(), persistChan, projChan, nil, nil)
	if err != nil {
		t.Fatalf("NewDeterministicCore failed: %v", err)
	}
	return c, persistChan, projChan
}

func eventTime(seq int64) time.Time {
	return time.UnixMicro(1_000_000 + seq*1000)
}

func mustPoolInitialize(pool, admin uuid.UUID, feeRateBps int64, allowList []uuid.UUID, seq int64) *event.PoolInitialize {
	return &event.PoolInitialize{
		EventID:    uuid.New(),
		Pool:       pool,
		Admin:      admin,
		Treasury:   treasuryID,
		Asset:      "USDC",
		FeeRateBps: feeRateBps,
		AllowList:  allowList,
		Sequence:   seq,
		Timestamp:  eventTime(seq),
	}
}

func mustTokenDeposit(userID uuid.UUID, amount, seq int64) *event.TokenDeposit {
	return &event.TokenDeposit{
		TransferID: uuid.New(),
		UserID:     userID,
		Asset:      "USDC",
		Amount:     amount,
		Sequence:   seq,
		Timestamp:  eventTime(seq),
	}
}

func mustTokenWithdraw(userID uuid.UUID, amount, seq int64) *event.TokenWithdraw {
	return &event.TokenWithdraw{
		TransferID: uuid.New(),
		UserID:     userID,
		Asset:      "USDC",
		Amount:     amount,
		Sequence:   seq,
		Timestamp:  eventTime(seq),
	}
}

func mustLiquidityDeposit(pool, provider uuid.UUID, amount, seq int64) *event.LiquidityDeposit {
	return &event.LiquidityDeposit{
		EventID:    uuid.New(),
		Pool:       pool,
		ProviderID: provider,
		Amount:     amount,
		Sequence:   seq,
		Timestamp:  eventTime(seq),
	}
}

func mustStakeDeposit(pool, staker uuid.UUID, amount, seq int64) *event.StakeDeposit {
	return &event.StakeDeposit{
		EventID:   uuid.New(),
		Pool:      pool,
		StakerID:  staker,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: eventTime(seq),
	}
}

func mustStakeWithdraw(pool, staker uuid.UUID, amount, seq int64) *event.StakeWithdraw {
	return &event.StakeWithdraw{
		EventID:   uuid.New(),
		Pool:      pool,
		StakerID:  staker,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: eventTime(seq),
	}
}

func mustFlashLoanRequest(pool, borrower uuid.UUID, principal, collateral, seq int64) *event.FlashLoanRequest {
	return &event.FlashLoanRequest{
		RequestID:  uuid.New(),
		Pool:       pool,
		BorrowerID: borrower,
		Principal:  principal,
		Collateral: collateral,
		Sequence:   seq,
		Timestamp:  eventTime(seq),
	}
}

func mustFlashLoanRepay(pool, loanID, caller uuid.UUID, seq int64) *event.FlashLoanRepay {
	return &event.FlashLoanRepay{
		EventID:   uuid.New(),
		Pool:      pool,
		LoanID:    loanID,
		CallerID:  caller,
		Sequence:  seq,
		Timestamp: eventTime(seq),
	}
}

func mustSlotTick(slot, seq int64) *event.SlotTick {
	return &event.SlotTick{
		Slot:      slot,
		Sequence:  seq,
		Timestamp: eventTime(seq),
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

func processAll(t *testing.T, c *core.DeterministicCore, events ...event.Event) {
	t.Helper()
	for _, e := range events {
		if err := c.ProcessEvent(e); err != nil {
			t.Fatalf("ProcessEvent(%T) failed: %v", e, err)
		}
	}
}

// fundedPool initializes a pool with 500 bps fee and one provider holding
// nothing: deposits 1000 USDC and supplies it all as liquidity.
// Returns the pool ID and the next source sequence for the pool partition.
func fundedPool(t *testing.T, c *core.DeterministicCore) (pool uuid.UUID, poolSeq int64, globalSeq int64) {
	t.Helper()
	pool = uuid.New()
	provider := uuid.New()
	admin := uuid.New()

	processAll(t, c,
		mustTokenDeposit(provider, 1000, 0),
		mustPoolInitialize(pool, admin, 500, nil, 0),
		mustLiquidityDeposit(pool, provider, 1000, 1),
	)
	return pool, 2, 1
}

// issuedLoan drives fundedPool plus a borrower with 150 USDC and a 200/100
// loan. Fee at 500 bps is 10. Returns the derived loan ID.
func issuedLoan(t *testing.T, c *core.DeterministicCore) (pool uuid.UUID, borrower uuid.UUID, loanID uuid.UUID, poolSeq int64, globalSeq int64) {
	t.Helper()
	pool, poolSeq, globalSeq = fundedPool(t, c)
	borrower = uuid.New()

	processAll(t, c, mustTokenDeposit(borrower, 150, globalSeq))
	globalSeq++

	req := mustFlashLoanRequest(pool, borrower, 200, 100, poolSeq)
	processAll(t, c, req)
	loanID = protocol.DeriveLoanID(pool, borrower, poolSeq)
	poolSeq++
	return pool, borrower, loanID, poolSeq, globalSeq
}

// ============================================================================
// Test: Pool Initialization
// ============================================================================

func TestPoolInitialize_CreatesPoolOnce(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool := uuid.New()

	init := mustPoolInitialize(pool, uuid.New(), 500, nil, 0)
	processAll(t, c, init)

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("pool init should move no tokens, got %d journals", len(outputs[0].Batch.Journals))
	}

	// Redelivery of the same event is a no-op
	if err := c.ProcessEvent(init); err != nil {
		t.Fatalf("duplicate delivery should be silently skipped: %v", err)
	}
	if got := len(drainOutputs(persistCh)); got != 0 {
		t.Errorf("duplicate delivery emitted %d outputs", got)
	}

	// A distinct event re-creating the pool is a real conflict
	err := c.ProcessEvent(mustPoolInitialize(pool, uuid.New(), 500, nil, 1))
	if !errors.Is(err, protocol.ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestPoolInitialize_RejectsUnknownAsset(t *testing.T) {
	c, _, _ := newTestCore(t)

	init := mustPoolInitialize(uuid.New(), uuid.New(), 500, nil, 0)
	init.Asset = "DOGE"

	err := c.ProcessEvent(init)
	if !errors.Is(err, protocol.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// ============================================================================
// Test: Token Transfers
// ============================================================================

func TestTokenDeposit_CreditsWallet(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	user := uuid.New()

	dep := mustTokenDeposit(user, 1_000_000, 0)
	processAll(t, c, dep)

	if got := c.Balances().GetWalletBalance(user, usdcID); got != 1_000_000 {
		t.Errorf("wallet = %d, want 1_000_000", got)
	}

	// Redelivered deposit must not double-credit
	if err := c.ProcessEvent(dep); err != nil {
		t.Fatalf("duplicate deposit: %v", err)
	}
	if got := c.Balances().GetWalletBalance(user, usdcID); got != 1_000_000 {
		t.Errorf("wallet after duplicate = %d, want 1_000_000", got)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
}

func TestTokenWithdraw_RejectsOverdraft(t *testing.T) {
	c, _, _ := newTestCore(t)
	user := uuid.New()

	processAll(t, c, mustTokenDeposit(user, 100, 0))

	err := c.ProcessEvent(mustTokenWithdraw(user, 101, 1))
	if !errors.Is(err, protocol.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	// The rejected withdrawal still consumed its source sequence
	processAll(t, c, mustTokenWithdraw(user, 100, 2))
	if got := c.Balances().GetWalletBalance(user, usdcID); got != 0 {
		t.Errorf("wallet = %d, want 0", got)
	}
}

// ============================================================================
// Test: Liquidity Provision
// ============================================================================

func TestLiquidityDeposit_MintsShares(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool := uuid.New()
	provider := uuid.New()

	processAll(t, c,
		mustTokenDeposit(provider, 1000, 0),
		mustPoolInitialize(pool, uuid.New(), 500, nil, 0),
		mustLiquidityDeposit(pool, provider, 1000, 1),
	)

	p, err := c.Protocol().Pool(pool)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if p.TotalShares != 1000 {
		t.Errorf("total shares = %d, want 1000", p.TotalShares)
	}
	if got := p.ShareBalance(provider); got != 1000 {
		t.Errorf("provider shares = %d, want 1000", got)
	}
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 1000 {
		t.Errorf("pool liquidity = %d, want 1000", got)
	}
	if got := c.Balances().GetWalletBalance(provider, usdcID); got != 0 {
		t.Errorf("provider wallet = %d, want 0", got)
	}
}

func TestLiquidityDeposit_RejectsUnfundedProvider(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool := uuid.New()

	processAll(t, c, mustPoolInitialize(pool, uuid.New(), 500, nil, 0))

	err := c.ProcessEvent(mustLiquidityDeposit(pool, uuid.New(), 500, 1))
	if !errors.Is(err, protocol.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

// ============================================================================
// Test: Flash Loan Issuance
// ============================================================================

func TestFlashLoanRequest_EscrowsCollateral(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool, borrower, loanID, _, _ := issuedLoan(t, c)

	// Principal landed, collateral left the wallet
	if got := c.Balances().GetWalletBalance(borrower, usdcID); got != 250 {
		t.Errorf("borrower wallet = %d, want 250", got)
	}
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 800 {
		t.Errorf("pool liquidity = %d, want 800", got)
	}
	if got := c.Balances().GetEscrowBalance(loanID, usdcID); got != 100 {
		t.Errorf("escrow = %d, want 100", got)
	}

	loan, err := c.Protocol().Loans.Get(loanID)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	if loan.Status != protocol.LoanStatusIssued {
		t.Errorf("status = %s, want issued", loan.Status)
	}
	if loan.Fee != 10 {
		t.Errorf("fee = %d, want 10 (500 bps of 200)", loan.Fee)
	}
	if loan.ExpirySlot != protocol.DefaultParams().LoanWindowSlots {
		t.Errorf("expiry slot = %d, want %d", loan.ExpirySlot, protocol.DefaultParams().LoanWindowSlots)
	}

	// The issuance output carries a loan outcome for downstream publishing
	outputs := drainOutputs(persistCh)
	last := outputs[len(outputs)-1]
	if last.Outcome == nil || last.Outcome.Type != event.OutcomeLoanIssued {
		t.Fatalf("expected loan_issued outcome, got %+v", last.Outcome)
	}
	if last.Outcome.LoanID != loanID {
		t.Errorf("outcome loan = %s, want %s", last.Outcome.LoanID, loanID)
	}
}

func TestFlashLoanRequest_CollateralBelowRequired(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, globalSeq := fundedPool(t, c)
	borrower := uuid.New()

	processAll(t, c, mustTokenDeposit(borrower, 150, globalSeq))

	// Neutral reputation requires 50% collateral: 100 against 200
	err := c.ProcessEvent(mustFlashLoanRequest(pool, borrower, 200, 99, poolSeq))
	if !errors.Is(err, protocol.ErrInsufficientCollateral) {
		t.Errorf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestFlashLoanRequest_CollateralMustBeBorrowerFunded(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, _ := fundedPool(t, c)
	borrower := uuid.New()

	// The borrower holds nothing. Even though the principal payout would
	// cover the posted collateral, issuance must fail: a loan can never
	// finance its own collateral.
	err := c.ProcessEvent(mustFlashLoanRequest(pool, borrower, 200, 100, poolSeq))
	if !errors.Is(err, protocol.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 1000 {
		t.Errorf("pool liquidity = %d, want 1000 untouched", got)
	}
}

func TestFlashLoanRequest_ExceedsLiquidity(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, globalSeq := fundedPool(t, c)
	borrower := uuid.New()

	processAll(t, c, mustTokenDeposit(borrower, 1000, globalSeq))

	err := c.ProcessEvent(mustFlashLoanRequest(pool, borrower, 1001, 600, poolSeq))
	if !errors.Is(err, protocol.ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestFlashLoanRequest_AllowListEnforced(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool := uuid.New()
	provider := uuid.New()
	listed := uuid.New()
	unlisted := uuid.New()

	processAll(t, c,
		mustTokenDeposit(provider, 1000, 0),
		mustTokenDeposit(listed, 150, 1),
		mustTokenDeposit(unlisted, 150, 2),
		mustPoolInitialize(pool, uuid.New(), 500, []uuid.UUID{listed}, 0),
		mustLiquidityDeposit(pool, provider, 1000, 1),
	)

	err := c.ProcessEvent(mustFlashLoanRequest(pool, unlisted, 200, 100, 2))
	if !errors.Is(err, protocol.ErrNotAllowListed) {
		t.Errorf("expected ErrNotAllowListed, got %v", err)
	}

	// The rejected request still consumed its source sequence
	processAll(t, c, mustFlashLoanRequest(pool, listed, 200, 100, 3))
}

func TestFlashLoanRequest_ReputationGate(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, globalSeq := fundedPool(t, c)
	borrower := uuid.New()

	processAll(t, c, mustTokenDeposit(borrower, 500, globalSeq))

	// Push the borrower's multiplier below the borrow threshold
	c.Protocol().Reputation.Multipliers[borrower] = 5000

	err := c.ProcessEvent(mustFlashLoanRequest(pool, borrower, 200, 300, poolSeq))
	if !errors.Is(err, protocol.ErrReputationTooLow) {
		t.Errorf("expected ErrReputationTooLow, got %v", err)
	}
}

// ============================================================================
// Test: Repayment
// ============================================================================

func TestFlashLoanRepay_SplitsFee(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, globalSeq := issuedLoan(t, c)
	staker := uuid.New()

	// Stake 100 so the staker half of the fee has somewhere to go
	processAll(t, c,
		mustTokenDeposit(staker, 100, globalSeq),
		mustStakeDeposit(pool, staker, 100, poolSeq),
	)
	poolSeq++

	drainOutputs(persistCh)
	processAll(t, c, mustFlashLoanRepay(pool, loanID, borrower, poolSeq))

	// Principal back to liquidity, fee split 5/5 treasury/stakers
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 1000 {
		t.Errorf("pool liquidity = %d, want 1000", got)
	}
	if got := c.Balances().GetWalletBalance(treasuryID, usdcID); got != 5 {
		t.Errorf("treasury wallet = %d, want 5", got)
	}
	if got := c.Balances().GetStakeVaultBalance(pool, usdcID); got != 105 {
		t.Errorf("stake vault = %d, want 105 (100 staked + 5 rewards)", got)
	}
	if got := c.Balances().GetEscrowBalance(loanID, usdcID); got != 0 {
		t.Errorf("escrow = %d, want 0 after release", got)
	}
	// 250 - 210 owed + 100 collateral back
	if got := c.Balances().GetWalletBalance(borrower, usdcID); got != 140 {
		t.Errorf("borrower wallet = %d, want 140", got)
	}

	loan, _ := c.Protocol().Loans.Get(loanID)
	if loan.Status != protocol.LoanStatusRepaid {
		t.Errorf("status = %s, want repaid", loan.Status)
	}
	if got := c.Protocol().Reputation.Multiplier(borrower); got != 10500 {
		t.Errorf("multiplier = %d, want 10500 after repay", got)
	}

	p, _ := c.Protocol().Pool(pool)
	if p.LoansRepaid != 1 || p.FeesCollected != 10 {
		t.Errorf("pool counters = repaid %d / fees %d, want 1 / 10", p.LoansRepaid, p.FeesCollected)
	}

	vault, _ := c.Protocol().Vault(pool)
	if got := vault.Pending(staker); got != 5 {
		t.Errorf("staker pending = %d, want 5", got)
	}

	outputs := drainOutputs(persistCh)
	last := outputs[len(outputs)-1]
	if last.Outcome == nil || last.Outcome.Type != event.OutcomeLoanRepaid {
		t.Fatalf("expected loan_repaid outcome, got %+v", last.Outcome)
	}
}

func TestFlashLoanRepay_NoStakersRoutesFeeToTreasury(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, _ := issuedLoan(t, c)

	processAll(t, c, mustFlashLoanRepay(pool, loanID, borrower, poolSeq))

	if got := c.Balances().GetWalletBalance(treasuryID, usdcID); got != 10 {
		t.Errorf("treasury wallet = %d, want the whole fee with no stakers", got)
	}
	if got := c.Balances().GetStakeVaultBalance(pool, usdcID); got != 0 {
		t.Errorf("stake vault = %d, want 0", got)
	}
}

func TestFlashLoanRepay_OnlyBorrowerBeforeExpiry(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, _, loanID, poolSeq, _ := issuedLoan(t, c)

	err := c.ProcessEvent(mustFlashLoanRepay(pool, loanID, uuid.New(), poolSeq))
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFlashLoanRepay_AllowedAtExactExpirySlot(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, _ := issuedLoan(t, c)

	expiry := protocol.DefaultParams().LoanWindowSlots
	processAll(t, c, mustSlotTick(expiry, 0))

	// The window is inclusive: repay at the expiry slot itself still settles
	processAll(t, c, mustFlashLoanRepay(pool, loanID, borrower, poolSeq))

	loan, _ := c.Protocol().Loans.Get(loanID)
	if loan.Status != protocol.LoanStatusRepaid {
		t.Errorf("status = %s, want repaid at expiry slot", loan.Status)
	}
}

func TestFlashLoanRepay_UnknownLoan(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, _, _ := fundedPool(t, c)

	err := c.ProcessEvent(mustFlashLoanRepay(pool, uuid.New(), uuid.New(), 2))
	if !errors.Is(err, protocol.ErrLoanNotFound) {
		t.Errorf("expected ErrLoanNotFound, got %v", err)
	}
}

// ============================================================================
// Test: Expiry & Default
// ============================================================================

func TestFlashLoanDefault_SeizesCollateralAndWritesOffShortfall(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, _ := issuedLoan(t, c)

	expiry := protocol.DefaultParams().LoanWindowSlots
	processAll(t, c, mustSlotTick(expiry+1, 0))

	drainOutputs(persistCh)

	// Past expiry any caller resolves the loan, borrower included
	keeper := uuid.New()
	processAll(t, c, mustFlashLoanRepay(pool, loanID, keeper, poolSeq))

	// Debt 210, escrow 100: the pool recovers 100, writes off 110
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 900 {
		t.Errorf("pool liquidity = %d, want 900", got)
	}
	if got := c.Balances().GetEscrowBalance(loanID, usdcID); got != 0 {
		t.Errorf("escrow = %d, want 0 after seizure", got)
	}
	// Wallet untouched by a default: collateral alone covers it
	if got := c.Balances().GetWalletBalance(borrower, usdcID); got != 250 {
		t.Errorf("borrower wallet = %d, want 250", got)
	}

	loan, _ := c.Protocol().Loans.Get(loanID)
	if loan.Status != protocol.LoanStatusDefaulted {
		t.Errorf("status = %s, want defaulted", loan.Status)
	}
	if loan.CollateralSeized != 100 || loan.Shortfall != 110 {
		t.Errorf("seized/shortfall = %d/%d, want 100/110", loan.CollateralSeized, loan.Shortfall)
	}

	p, _ := c.Protocol().Pool(pool)
	if p.LossWrittenOff != 110 {
		t.Errorf("loss written off = %d, want 110", p.LossWrittenOff)
	}
	if got := c.Protocol().Reputation.Multiplier(borrower); got != 8000 {
		t.Errorf("multiplier = %d, want 8000 after default", got)
	}

	outputs := drainOutputs(persistCh)
	last := outputs[len(outputs)-1]
	if last.Outcome == nil || last.Outcome.Type != event.OutcomeLoanDefaulted {
		t.Fatalf("expected loan_defaulted outcome, got %+v", last.Outcome)
	}
	if last.Outcome.Shortfall != 110 {
		t.Errorf("outcome shortfall = %d, want 110", last.Outcome.Shortfall)
	}

	// A second resolution attempt must fail
	err := c.ProcessEvent(mustFlashLoanRepay(pool, loanID, keeper, poolSeq+1))
	if !errors.Is(err, protocol.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestFlashLoanDefault_SurplusReturnsToBorrower(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, globalSeq := fundedPool(t, c)
	borrower := uuid.New()

	// Over-collateralized loan: 300 against a 210 debt
	processAll(t, c, mustTokenDeposit(borrower, 300, globalSeq))
	processAll(t, c, mustFlashLoanRequest(pool, borrower, 200, 300, poolSeq))
	loanID := protocol.DeriveLoanID(pool, borrower, poolSeq)
	poolSeq++

	expiry := protocol.DefaultParams().LoanWindowSlots
	processAll(t, c,
		mustSlotTick(expiry+1, 0),
		mustFlashLoanRepay(pool, loanID, uuid.New(), poolSeq),
	)

	// 300 escrowed: 210 seized, 90 back to the borrower's wallet
	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 1010 {
		t.Errorf("pool liquidity = %d, want 1010 (principal + fee recovered)", got)
	}
	// Wallet: 300 - 300 collateral + 200 principal + 90 surplus
	if got := c.Balances().GetWalletBalance(borrower, usdcID); got != 290 {
		t.Errorf("borrower wallet = %d, want 290", got)
	}

	loan, _ := c.Protocol().Loans.Get(loanID)
	if loan.Shortfall != 0 {
		t.Errorf("shortfall = %d, want 0", loan.Shortfall)
	}

	p, _ := c.Protocol().Pool(pool)
	if p.LossWrittenOff != 0 {
		t.Errorf("loss written off = %d, want 0", p.LossWrittenOff)
	}
}

func TestCollateralRequirement_RisesAfterDefault(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, globalSeq := fundedPool(t, c)
	borrower := uuid.New()

	processAll(t, c, mustTokenDeposit(borrower, 300, globalSeq))
	processAll(t, c, mustFlashLoanRequest(pool, borrower, 200, 100, poolSeq))
	loanID := protocol.DeriveLoanID(pool, borrower, poolSeq)
	poolSeq++

	expiry := protocol.DefaultParams().LoanWindowSlots
	processAll(t, c,
		mustSlotTick(expiry+1, 0),
		mustFlashLoanRepay(pool, loanID, uuid.New(), poolSeq),
	)
	poolSeq++

	// Multiplier 8000 raises the ratio to 62.5%: 200 now needs 125
	err := c.ProcessEvent(mustFlashLoanRequest(pool, borrower, 200, 124, poolSeq))
	if !errors.Is(err, protocol.ErrInsufficientCollateral) {
		t.Errorf("expected ErrInsufficientCollateral at 124, got %v", err)
	}
	poolSeq++

	processAll(t, c, mustFlashLoanRequest(pool, borrower, 200, 125, poolSeq))
}

// ============================================================================
// Test: Staking
// ============================================================================

func TestStakeWithdraw_ClaimsRewards(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, globalSeq := issuedLoan(t, c)
	staker := uuid.New()

	processAll(t, c,
		mustTokenDeposit(staker, 100, globalSeq),
		mustStakeDeposit(pool, staker, 100, poolSeq),
	)
	poolSeq++

	processAll(t, c, mustFlashLoanRepay(pool, loanID, borrower, poolSeq))
	poolSeq++

	// Claim-only withdrawal: amount 0 pays rewards, leaves the principal
	processAll(t, c, mustStakeWithdraw(pool, staker, 0, poolSeq))
	poolSeq++

	if got := c.Balances().GetWalletBalance(staker, usdcID); got != 5 {
		t.Errorf("staker wallet = %d, want 5 after claim", got)
	}
	if got := c.Balances().GetStakeVaultBalance(pool, usdcID); got != 100 {
		t.Errorf("stake vault = %d, want 100", got)
	}

	vault, _ := c.Protocol().Vault(pool)
	if got := vault.Pending(staker); got != 0 {
		t.Errorf("pending = %d, want 0 after claim", got)
	}

	// Full exit returns the principal
	processAll(t, c, mustStakeWithdraw(pool, staker, 100, poolSeq))
	if got := c.Balances().GetWalletBalance(staker, usdcID); got != 105 {
		t.Errorf("staker wallet = %d, want 105 after exit", got)
	}
	if vault.TotalStaked != 0 {
		t.Errorf("total staked = %d, want 0", vault.TotalStaked)
	}
}

func TestStakeWithdraw_RequiresPosition(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool, poolSeq, _ := fundedPool(t, c)

	err := c.ProcessEvent(mustStakeWithdraw(pool, uuid.New(), 50, poolSeq))
	if !errors.Is(err, protocol.ErrNoStake) {
		t.Errorf("expected ErrNoStake, got %v", err)
	}
}

// ============================================================================
// Test: Ordering & Hash Chain
// ============================================================================

func TestSequenceGap_Rejected(t *testing.T) {
	c, _, _ := newTestCore(t)
	pool := uuid.New()

	processAll(t, c, mustPoolInitialize(pool, uuid.New(), 500, nil, 0))

	// Pool partition expects 1 next; 3 is a gap
	err := c.ProcessEvent(mustLiquidityDeposit(pool, uuid.New(), 100, 3))
	if err == nil {
		t.Fatal("expected sequence gap error")
	}
}

func TestAdminInjectedEvents_SkipStreamSequencing(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool := uuid.New()
	provider := uuid.New()

	// Operator injections carry wall-clock sequences far ahead of any
	// stream position; they must not be rejected as gaps.
	init := mustPoolInitialize(pool, uuid.New(), 500, nil, time.Now().UnixMicro())
	if err := c.ProcessAdminEvent(init); err != nil {
		t.Fatalf("admin pool init: %v", err)
	}
	dep := mustTokenDeposit(provider, 1000, time.Now().UnixMicro())
	if err := c.ProcessAdminEvent(dep); err != nil {
		t.Fatalf("admin deposit: %v", err)
	}

	// Stream partitions are untouched by admin injections: sequence 0
	// still opens both the global and the pool partition.
	processAll(t, c,
		mustTokenDeposit(uuid.New(), 50, 0),
		mustLiquidityDeposit(pool, provider, 1000, 0),
	)

	if got := c.Balances().GetPoolLiquidity(pool, usdcID); got != 1000 {
		t.Errorf("pool liquidity = %d, want 1000", got)
	}

	// The log records the origin so a restart replays injections the same way.
	outputs := drainOutputs(persistCh)
	if got := outputs[0].Envelope.Origin; got != event.OriginAdmin {
		t.Errorf("injected envelope origin = %q, want %q", got, event.OriginAdmin)
	}
	if got := outputs[2].Envelope.Origin; got != event.OriginStream {
		t.Errorf("stream envelope origin = %q, want %q", got, event.OriginStream)
	}
}

func TestSlotTick_ToleratesGaps(t *testing.T) {
	c, _, _ := newTestCore(t)

	processAll(t, c,
		mustSlotTick(5, 0),
		mustSlotTick(40, 7),
	)

	if got := c.Protocol().Clock.Current; got != 40 {
		t.Errorf("slot = %d, want 40", got)
	}

	// Stale ticks are ignored, not errors
	processAll(t, c, mustSlotTick(30, 9))
	if got := c.Protocol().Clock.Current; got != 40 {
		t.Errorf("slot = %d after stale tick, want 40", got)
	}
}

func TestStateHash_Chains(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	user := uuid.New()

	processAll(t, c,
		mustTokenDeposit(user, 100, 0),
		mustTokenDeposit(user, 200, 1),
	)

	outputs := drainOutputs(persistCh)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	if outputs[1].Envelope.PrevHash != outputs[0].Envelope.StateHash {
		t.Error("second event's prev hash does not chain to the first's state hash")
	}
	if outputs[0].Envelope.StateHash == outputs[1].Envelope.StateHash {
		t.Error("distinct events produced identical state hashes")
	}
	if c.GetStateHash() != outputs[1].Envelope.StateHash {
		t.Error("core chain tip does not match last envelope")
	}
}

// ============================================================================
// Test: Snapshot & Restore
// ============================================================================

func TestSnapshotRestore_ReproducesState(t *testing.T) {
	c, persistCh, _ := newTestCore(t)
	pool, borrower, loanID, poolSeq, _ := issuedLoan(t, c)

	snap := c.CreateSnapshotState()

	restored, _, _ := newTestCore(t)
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.GetSequence() != c.GetSequence() {
		t.Errorf("sequence = %d, want %d", restored.GetSequence(), c.GetSequence())
	}
	if restored.GetStateHash() != c.GetStateHash() {
		t.Error("restored chain tip differs")
	}
	if got := restored.Balances().GetEscrowBalance(loanID, usdcID); got != 100 {
		t.Errorf("restored escrow = %d, want 100", got)
	}

	loan, err := restored.Protocol().Loans.Get(loanID)
	if err != nil {
		t.Fatalf("restored loan: %v", err)
	}
	if loan.Status != protocol.LoanStatusIssued {
		t.Errorf("restored status = %s, want issued", loan.Status)
	}

	// The same next event must produce the same hash on both cores
	drainOutputs(persistCh)
	repay := mustFlashLoanRepay(pool, loanID, borrower, poolSeq)
	processAll(t, c, repay)
	processAll(t, restored, repay)

	if c.GetStateHash() != restored.GetStateHash() {
		t.Error("original and restored cores diverged on the same event")
	}
	if got := restored.Balances().GetPoolLiquidity(pool, usdcID); got != 1000 {
		t.Errorf("restored pool liquidity = %d, want 1000", got)
	}
}
