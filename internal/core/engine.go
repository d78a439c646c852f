package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"FlashPool/internal/event"
	"FlashPool/internal/ledger"
	fpmath "FlashPool/internal/math"
	"FlashPool/internal/observability"
	"FlashPool/internal/protocol"

	"github.com/google/uuid"
)

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	state             *protocol.State
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput carries one processed event to the persistence and projection
// workers. Outcome is non-nil only when a loan changed state.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
	Outcome    *event.LoanOutcome
}

func NewDeterministicCore(
	startSequence int64,
	params protocol.Params,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*DeterministicCore, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidConfig, err)
	}

	balanceTracker := ledger.NewBalanceTracker()

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        ledger.NewJournalGenerator(startSequence, balanceTracker),
		validator:         ledger.NewInvariantValidator(balanceTracker),
		state:             protocol.NewState(params),
		idempotency:       idempotencyChecker,
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}, nil
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	return c.processEvent(evt, false)
}

// ProcessAdminEvent runs an operator-injected event through the same
// pipeline. Admin injections carry wall-clock sequences and are not part of
// any upstream producer's stream, so their ordering is observed on a
// dedicated partition instead of enforced against the event's own.
func (c *DeterministicCore) ProcessAdminEvent(evt event.Event) error {
	return c.processEvent(evt, true)
}

func (c *DeterministicCore) processEvent(evt event.Event, adminInjected bool) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	origin := event.OriginStream
	if adminInjected {
		origin = event.OriginAdmin
	}

	// Special handling for slot ticks (gaps tolerated)
	if tick, ok := evt.(*event.SlotTick); ok {
		if err := c.sequenceValidator.ValidateSlotSequence(tick.Sequence); err != nil {
			return err
		}
	} else if adminInjected {
		c.sequenceValidator.ObserveAdminSequence(sourceSequence)
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch. Handlers run every precondition before touching
	// any state, so a rejection here leaves ledger and protocol state intact.
	c.journalGen.SetSequence(c.sequence)

	batch, outcome, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "precondition").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Validate and apply the batch. State-only events (PoolInitialize,
	// SlotTick) produce no journals but still need an envelope in the log.
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}

		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Compute state digest and extend the hash chain
	stateDigest := c.computeStateDigest(batch, evt, outcome)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// Step 6: Create envelope. The payload is the event in its wire JSON
	// form, so replay can feed it back through the ingestion parser.
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: cannot marshal event payload: %v", err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		PoolID:         evt.PoolID(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		Origin:         origin,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Outcome:    outcome,
	}
	c.sequence++

	// Step 7: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Emit outputs.
	// Persistence: blocking send — the core stalls until the persistence
	// worker drains. This guarantees no event is lost.
	c.persistChan <- output

	// Projections: non-blocking send — drop on full. Projection workers
	// can rebuild from the event log if they fall behind.
	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection will catch up via rebuild
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if poolID := evt.PoolID(); poolID != nil {
		return fmt.Sprintf("pool:%s", *poolID)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from an event. The core
// never calls time.Now(): every timestamp is an input, so replay reproduces
// the log byte for byte.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.PoolInitialize:
		return e.Timestamp
	case *event.TokenDeposit:
		return e.Timestamp
	case *event.TokenWithdraw:
		return e.Timestamp
	case *event.LiquidityDeposit:
		return e.Timestamp
	case *event.StakeDeposit:
		return e.Timestamp
	case *event.StakeWithdraw:
		return e.Timestamp
	case *event.FlashLoanRequest:
		return e.Timestamp
	case *event.FlashLoanRepay:
		return e.Timestamp
	case *event.SlotTick:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// computeStateDigest creates canonical bytes for state hashing: the balances
// the batch touched, then the protocol state the event could have changed.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch, evt event.Event, outcome *event.LoanOutcome) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	// Build digest
	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		// Append account path
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		// Append balance (8 bytes LE)
		digest = appendInt64LE(digest, balance)
	}

	// Append the protocol state touched by this event
	var poolID, loanID *uuid.UUID
	if s := evt.PoolID(); s != nil {
		if id, err := uuid.Parse(*s); err == nil {
			poolID = &id
		}
	}
	if outcome != nil {
		loanID = &outcome.LoanID
	}
	digest = c.state.AppendDigest(digest, poolID, loanID)

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// emptyBatch builds a journal-free batch for state-only events
func (c *DeterministicCore) emptyBatch(evt event.Event) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  evt.IdempotencyKey(),
		Sequence:  c.sequence,
		Timestamp: c.getEventTimestamp(evt).UnixMicro(),
		Journals:  []ledger.Journal{},
	}
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	switch e := evt.(type) {
	case *event.TokenWithdraw:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidateWalletNonNegative(e.UserID, assetID); err != nil {
			return fmt.Errorf("post-check wallet: %w", err)
		}

	case *event.LiquidityDeposit:
		if err := c.postCheckPool(e.Pool, e.ProviderID); err != nil {
			return err
		}

	case *event.StakeDeposit:
		if err := c.postCheckPool(e.Pool, e.StakerID); err != nil {
			return err
		}

	case *event.StakeWithdraw:
		if err := c.postCheckPool(e.Pool, e.StakerID); err != nil {
			return err
		}

	case *event.FlashLoanRequest:
		if err := c.postCheckPool(e.Pool, e.BorrowerID); err != nil {
			return err
		}

	case *event.FlashLoanRepay:
		loan, err := c.state.Loans.Get(e.LoanID)
		if err != nil {
			return fmt.Errorf("post-check loan: %w", err)
		}
		if err := c.postCheckPool(e.Pool, loan.Borrower); err != nil {
			return err
		}
		// Resolution must drain the escrow account completely
		pool, err := c.state.Pool(e.Pool)
		if err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(pool.Asset)
		if err := c.validator.ValidateEscrowClosed(e.LoanID, assetID); err != nil {
			return fmt.Errorf("post-check escrow: %w", err)
		}
	}

	// Periodic global balance check: the ledger must stay zero-sum
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("post-check: global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

func (c *DeterministicCore) postCheckPool(poolID, userID uuid.UUID) error {
	pool, err := c.state.Pool(poolID)
	if err != nil {
		return err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)
	if err := c.validator.ValidateWalletNonNegative(userID, assetID); err != nil {
		return fmt.Errorf("post-check wallet: %w", err)
	}
	if err := c.validator.ValidatePoolNonNegative(poolID, assetID); err != nil {
		return fmt.Errorf("post-check pool: %w", err)
	}
	return nil
}

// --- Event Handlers ---

func (c *DeterministicCore) handlePoolInitialize(evt *event.PoolInitialize) (*ledger.Batch, error) {
	if _, ok := ledger.GetAssetID(evt.Asset); !ok {
		return nil, fmt.Errorf("%w: unknown asset %s", protocol.ErrInvalidConfig, evt.Asset)
	}

	if _, err := c.state.InitializePool(evt.Pool, evt.Admin, evt.Treasury, evt.Asset, evt.FeeRateBps, evt.AllowList); err != nil {
		return nil, err
	}

	// Pool creation moves no tokens
	return c.emptyBatch(evt), nil
}

func (c *DeterministicCore) handleTokenDeposit(evt *event.TokenDeposit) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownAsset, evt.Asset)
	}
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("%w: deposit %d", protocol.ErrInvalidAmount, evt.Amount)
	}

	return c.journalGen.GenerateTokenDeposit(evt.UserID, evt.TransferID, evt.Amount, assetID, evt.Timestamp.UnixMicro())
}

func (c *DeterministicCore) handleTokenWithdraw(evt *event.TokenWithdraw) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownAsset, evt.Asset)
	}
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal %d", protocol.ErrInvalidAmount, evt.Amount)
	}
	if c.balanceTracker.GetWalletBalance(evt.UserID, assetID) < evt.Amount {
		return nil, fmt.Errorf("%w: withdrawal %d", protocol.ErrInsufficientFunds, evt.Amount)
	}

	return c.journalGen.GenerateTokenWithdraw(evt.UserID, evt.TransferID, evt.Amount, assetID, evt.Timestamp.UnixMicro())
}

func (c *DeterministicCore) handleLiquidityDeposit(evt *event.LiquidityDeposit) (*ledger.Batch, error) {
	pool, err := c.state.Pool(evt.Pool)
	if err != nil {
		return nil, err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)

	if evt.Amount <= 0 {
		return nil, fmt.Errorf("%w: deposit %d", protocol.ErrInvalidAmount, evt.Amount)
	}
	if c.balanceTracker.GetWalletBalance(evt.ProviderID, assetID) < evt.Amount {
		return nil, fmt.Errorf("%w: deposit %d", protocol.ErrInsufficientFunds, evt.Amount)
	}

	// Share price is set by the balance BEFORE this deposit lands
	baseBalance := c.balanceTracker.GetPoolLiquidity(pool.ID, assetID)
	if fpmath.SharesForDeposit(evt.Amount, pool.TotalShares, baseBalance) <= 0 {
		return nil, fmt.Errorf("%w: deposit %d mints zero shares", protocol.ErrInvalidAmount, evt.Amount)
	}

	batch, err := c.journalGen.GenerateLiquidityDeposit(
		evt.ProviderID, pool.ID, evt.IdempotencyKey(), evt.Amount, assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	if _, err := pool.MintShares(evt.ProviderID, evt.Amount, baseBalance); err != nil {
		return nil, err
	}

	return batch, nil
}

func (c *DeterministicCore) handleStakeDeposit(evt *event.StakeDeposit) (*ledger.Batch, error) {
	pool, err := c.state.Pool(evt.Pool)
	if err != nil {
		return nil, err
	}
	vault, err := c.state.Vault(evt.Pool)
	if err != nil {
		return nil, err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)

	if evt.Amount <= 0 {
		return nil, fmt.Errorf("%w: stake %d", protocol.ErrInvalidAmount, evt.Amount)
	}
	if c.balanceTracker.GetWalletBalance(evt.StakerID, assetID) < evt.Amount {
		return nil, fmt.Errorf("%w: stake %d", protocol.ErrInsufficientFunds, evt.Amount)
	}

	// Growing a position settles rewards accrued so far
	pending := vault.Pending(evt.StakerID)

	batch, err := c.journalGen.GenerateStakeDeposit(
		evt.StakerID, pool.ID, evt.IdempotencyKey(), evt.Amount, pending, assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	if _, err := vault.Stake(evt.StakerID, evt.Amount, c.state.Clock.Current); err != nil {
		return nil, err
	}

	return batch, nil
}

func (c *DeterministicCore) handleStakeWithdraw(evt *event.StakeWithdraw) (*ledger.Batch, error) {
	pool, err := c.state.Pool(evt.Pool)
	if err != nil {
		return nil, err
	}
	vault, err := c.state.Vault(evt.Pool)
	if err != nil {
		return nil, err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)

	pos, ok := vault.Positions[evt.StakerID]
	if !ok {
		return nil, protocol.ErrNoStake
	}
	if evt.Amount < 0 || evt.Amount > pos.Amount {
		return nil, fmt.Errorf("%w: unstake %d against position %d", protocol.ErrInsufficientFunds, evt.Amount, pos.Amount)
	}

	pending := vault.Pending(evt.StakerID)

	batch, err := c.journalGen.GenerateStakeWithdraw(
		evt.StakerID, pool.ID, evt.IdempotencyKey(), evt.Amount, pending, assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}

	if _, _, err := vault.Unstake(evt.StakerID, evt.Amount); err != nil {
		return nil, err
	}

	return batch, nil
}

func (c *DeterministicCore) handleFlashLoanRequest(evt *event.FlashLoanRequest) (*ledger.Batch, *event.LoanOutcome, error) {
	pool, err := c.state.Pool(evt.Pool)
	if err != nil {
		return nil, nil, err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)
	params := c.state.Params

	if evt.Principal <= 0 {
		return nil, nil, fmt.Errorf("%w: principal %d", protocol.ErrInvalidAmount, evt.Principal)
	}
	if evt.Collateral < 0 {
		return nil, nil, fmt.Errorf("%w: collateral %d", protocol.ErrInvalidAmount, evt.Collateral)
	}
	if !pool.IsAllowed(evt.BorrowerID) {
		return nil, nil, fmt.Errorf("%w: borrower %s", protocol.ErrNotAllowListed, evt.BorrowerID)
	}
	if !c.state.Reputation.CanBorrow(evt.BorrowerID) {
		return nil, nil, fmt.Errorf("%w: multiplier %d below threshold %d",
			protocol.ErrReputationTooLow, c.state.Reputation.Multiplier(evt.BorrowerID), params.BorrowThresholdBps)
	}

	multiplier := c.state.Reputation.Multiplier(evt.BorrowerID)
	required := fpmath.RequiredCollateral(evt.Principal, params.BaseCollateralRatioBps, params.MinCollateralRatioBps, multiplier)
	if evt.Collateral < required {
		return nil, nil, fmt.Errorf("%w: offered %d, required %d", protocol.ErrInsufficientCollateral, evt.Collateral, required)
	}

	if c.balanceTracker.GetPoolLiquidity(pool.ID, assetID) < evt.Principal {
		return nil, nil, fmt.Errorf("%w: principal %d", protocol.ErrInsufficientLiquidity, evt.Principal)
	}
	// Collateral comes from funds the borrower already holds; the principal
	// payout never finances its own collateral.
	if c.balanceTracker.GetWalletBalance(evt.BorrowerID, assetID) < evt.Collateral {
		return nil, nil, fmt.Errorf("%w: cannot fund collateral %d", protocol.ErrInsufficientFunds, evt.Collateral)
	}

	fee := fpmath.FeeForPrincipal(evt.Principal, pool.FeeRateBps)
	loanID := protocol.DeriveLoanID(pool.ID, evt.BorrowerID, evt.Sequence)

	batch, err := c.journalGen.GenerateLoanIssued(
		evt.BorrowerID, pool.ID, loanID, evt.Principal, evt.Collateral, assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, nil, err
	}

	loan := &protocol.Loan{
		ID:         loanID,
		Pool:       pool.ID,
		Borrower:   evt.BorrowerID,
		Principal:  evt.Principal,
		Fee:        fee,
		Collateral: evt.Collateral,
		IssuedSlot: c.state.Clock.Current,
		ExpirySlot: c.state.Clock.Current + params.LoanWindowSlots,
		Status:     protocol.LoanStatusIssued,
	}
	if err := c.state.Loans.Issue(loan); err != nil {
		return nil, nil, err
	}
	pool.LoansIssued++

	outcome := &event.LoanOutcome{
		Type:          event.OutcomeLoanIssued,
		LoanID:        loanID,
		Pool:          pool.ID,
		Borrower:      evt.BorrowerID,
		Asset:         pool.Asset,
		Principal:     evt.Principal,
		Fee:           fee,
		Collateral:    evt.Collateral,
		ExpirySlot:    loan.ExpirySlot,
		MultiplierBps: multiplier,
		Sequence:      c.sequence,
	}

	return batch, outcome, nil
}

func (c *DeterministicCore) handleFlashLoanRepay(evt *event.FlashLoanRepay) (*ledger.Batch, *event.LoanOutcome, error) {
	loan, err := c.state.Loans.Get(evt.LoanID)
	if err != nil {
		return nil, nil, err
	}
	if loan.Pool != evt.Pool {
		return nil, nil, fmt.Errorf("%w: loan %s is not in pool %s", protocol.ErrLoanNotFound, evt.LoanID, evt.Pool)
	}
	if loan.Status != protocol.LoanStatusIssued {
		return nil, nil, fmt.Errorf("%w: loan %s is %s", protocol.ErrAlreadyResolved, loan.ID, loan.Status)
	}

	pool, err := c.state.Pool(loan.Pool)
	if err != nil {
		return nil, nil, err
	}
	vault, err := c.state.Vault(loan.Pool)
	if err != nil {
		return nil, nil, err
	}
	assetID, _ := ledger.GetAssetID(pool.Asset)
	slot := c.state.Clock.Current

	if !loan.Expired(slot) {
		return c.repayLoan(evt, loan, pool, vault, assetID, slot)
	}
	return c.defaultLoan(evt, loan, pool, assetID, slot)
}

// repayLoan settles an unexpired loan: only the borrower may repay, and the
// wallet must cover principal plus fee without touching escrowed collateral.
func (c *DeterministicCore) repayLoan(
	evt *event.FlashLoanRepay,
	loan *protocol.Loan,
	pool *protocol.Pool,
	vault *protocol.StakeVault,
	assetID ledger.AssetID,
	slot int64,
) (*ledger.Batch, *event.LoanOutcome, error) {
	if evt.CallerID != loan.Borrower {
		return nil, nil, fmt.Errorf("%w: caller %s is not the borrower", protocol.ErrUnauthorized, evt.CallerID)
	}

	owed := loan.Principal + loan.Fee
	if c.balanceTracker.GetWalletBalance(loan.Borrower, assetID) < owed {
		return nil, nil, fmt.Errorf("%w: repayment %d", protocol.ErrInsufficientFunds, owed)
	}

	treasuryFee, stakerFee := fpmath.SplitFee(loan.Fee, c.state.Params.StakerShareBps)
	if vault.TotalStaked == 0 {
		// No stakers to reward: the treasury takes the whole fee
		treasuryFee += stakerFee
		stakerFee = 0
	}

	batch, err := c.journalGen.GenerateLoanRepaid(
		loan.Borrower, pool.ID, pool.Treasury, loan.ID,
		loan.Principal, treasuryFee, stakerFee, loan.Collateral,
		assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, nil, err
	}

	vault.Distribute(stakerFee)
	if _, err := c.state.Loans.Resolve(loan.ID, protocol.LoanStatusRepaid, slot); err != nil {
		return nil, nil, err
	}
	pool.LoansRepaid++
	pool.FeesCollected += loan.Fee
	c.state.Reputation.OnRepay(loan.Borrower)

	outcome := &event.LoanOutcome{
		Type:          event.OutcomeLoanRepaid,
		LoanID:        loan.ID,
		Pool:          pool.ID,
		Borrower:      loan.Borrower,
		Asset:         pool.Asset,
		Principal:     loan.Principal,
		Fee:           loan.Fee,
		Collateral:    loan.Collateral,
		ExpirySlot:    loan.ExpirySlot,
		ResolvedSlot:  slot,
		MultiplierBps: c.state.Reputation.Multiplier(loan.Borrower),
		Sequence:      c.sequence,
	}

	return batch, outcome, nil
}

// defaultLoan resolves an expired loan from escrow alone. Any caller may
// trigger it; the pool recovers up to principal+fee, surplus returns to the
// borrower, and the unrecovered remainder is written off.
func (c *DeterministicCore) defaultLoan(
	evt *event.FlashLoanRepay,
	loan *protocol.Loan,
	pool *protocol.Pool,
	assetID ledger.AssetID,
	slot int64,
) (*ledger.Batch, *event.LoanOutcome, error) {
	debt := loan.Principal + loan.Fee
	seized := debt
	if loan.Collateral < seized {
		seized = loan.Collateral
	}
	surplus := loan.Collateral - seized
	shortfall := debt - seized

	batch, err := c.journalGen.GenerateLoanDefaulted(
		loan.Borrower, pool.ID, loan.ID, seized, surplus, assetID, evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, nil, err
	}

	if _, err := c.state.Loans.Resolve(loan.ID, protocol.LoanStatusDefaulted, slot); err != nil {
		return nil, nil, err
	}
	loan.CollateralSeized = seized
	loan.Shortfall = shortfall
	pool.LoansDefaulted++
	pool.LossWrittenOff += shortfall
	c.state.Reputation.OnDefault(loan.Borrower)

	outcome := &event.LoanOutcome{
		Type:             event.OutcomeLoanDefaulted,
		LoanID:           loan.ID,
		Pool:             pool.ID,
		Borrower:         loan.Borrower,
		Asset:            pool.Asset,
		Principal:        loan.Principal,
		Fee:              loan.Fee,
		Collateral:       loan.Collateral,
		CollateralSeized: seized,
		Shortfall:        shortfall,
		ExpirySlot:       loan.ExpirySlot,
		ResolvedSlot:     slot,
		MultiplierBps:    c.state.Reputation.Multiplier(loan.Borrower),
		Sequence:         c.sequence,
	}

	return batch, outcome, nil
}

func (c *DeterministicCore) handleSlotTick(evt *event.SlotTick) (*ledger.Batch, error) {
	c.state.Clock.Advance(evt.Slot)

	// Clock moves no tokens
	return c.emptyBatch(evt), nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ledger.Batch, *event.LoanOutcome, error) {
	switch e := evt.(type) {
	case *event.PoolInitialize:
		batch, err := c.handlePoolInitialize(e)
		return batch, nil, err
	case *event.TokenDeposit:
		batch, err := c.handleTokenDeposit(e)
		return batch, nil, err
	case *event.TokenWithdraw:
		batch, err := c.handleTokenWithdraw(e)
		return batch, nil, err
	case *event.LiquidityDeposit:
		batch, err := c.handleLiquidityDeposit(e)
		return batch, nil, err
	case *event.StakeDeposit:
		batch, err := c.handleStakeDeposit(e)
		return batch, nil, err
	case *event.StakeWithdraw:
		batch, err := c.handleStakeWithdraw(e)
		return batch, nil, err
	case *event.FlashLoanRequest:
		return c.handleFlashLoanRequest(e)
	case *event.FlashLoanRepay:
		return c.handleFlashLoanRepay(e)
	case *event.SlotTick:
		batch, err := c.handleSlotTick(e)
		return batch, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Protocol        *protocol.Snapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart: load latest snapshot, then replay events past it.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	// Restore sequence
	c.sequence = snap.Sequence + 1 // Next sequence to assign

	// Restore state hash chain
	c.hasher.SetPrevHash(snap.StateHash)

	// Restore balances
	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	// Restore protocol state (pools, vaults, loans, reputation, clock)
	if snap.Protocol != nil {
		if err := c.state.Restore(snap.Protocol); err != nil {
			return fmt.Errorf("restore protocol state: %w", err)
		}
	}

	// Restore sequence validator state
	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	// Restore journal generator sequence
	c.journalGen.SetSequence(c.sequence)

	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Balances exposes the tracker for read-only inspection (tests, readiness)
func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

// Protocol exposes the protocol state for read-only inspection
func (c *DeterministicCore) Protocol() *protocol.State {
	return c.state
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Protocol:        c.state.Export(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
