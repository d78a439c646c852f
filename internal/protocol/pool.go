package protocol

import (
	"fmt"

	fpmath "FlashPool/internal/math"

	"github.com/google/uuid"
)

// Pool is the per-pool protocol state. Token balances live in the ledger;
// this tracks everything the ledger cannot express: share supply, the
// allow-list, and lifetime counters.
type Pool struct {
	ID         uuid.UUID
	Admin      uuid.UUID
	Treasury   uuid.UUID
	Asset      string
	FeeRateBps int64

	// LP share supply and per-provider holdings
	TotalShares int64
	Shares      map[uuid.UUID]int64

	// Borrowers permitted to draw flash loans. Empty means the pool is open.
	AllowList map[uuid.UUID]bool

	// Lifetime counters
	LoansIssued    int64
	LoansRepaid    int64
	LoansDefaulted int64
	FeesCollected  int64

	// LossWrittenOff accumulates principal+fee the pool could not recover
	// from collateral on defaults. It is an accounting counter, not a
	// ledger account: the unrecovered value left with the borrower's wallet
	// at issuance, so the ledger stays zero-sum without it.
	LossWrittenOff int64
}

// NewPool validates the configuration and creates an empty pool.
// The treasury identity receives the protocol's share of every loan fee,
// paid into its regular wallet.
func NewPool(id, admin, treasury uuid.UUID, asset string, feeRateBps int64, allowList []uuid.UUID) (*Pool, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: pool id is nil", ErrInvalidConfig)
	}
	if admin == uuid.Nil {
		return nil, fmt.Errorf("%w: admin is nil", ErrInvalidConfig)
	}
	if treasury == uuid.Nil {
		return nil, fmt.Errorf("%w: treasury is nil", ErrInvalidConfig)
	}
	if feeRateBps < 0 || feeRateBps > fpmath.BpsScale {
		return nil, fmt.Errorf("%w: fee rate %d out of range [0, %d]", ErrInvalidConfig, feeRateBps, fpmath.BpsScale)
	}

	p := &Pool{
		ID:         id,
		Admin:      admin,
		Treasury:   treasury,
		Asset:      asset,
		FeeRateBps: feeRateBps,
		Shares:     make(map[uuid.UUID]int64),
		AllowList:  make(map[uuid.UUID]bool, len(allowList)),
	}
	for _, b := range allowList {
		if b == uuid.Nil {
			return nil, fmt.Errorf("%w: allow-list contains nil borrower", ErrInvalidConfig)
		}
		p.AllowList[b] = true
	}
	return p, nil
}

// IsAllowed reports whether a borrower may request loans from this pool
func (p *Pool) IsAllowed(borrower uuid.UUID) bool {
	if len(p.AllowList) == 0 {
		return true
	}
	return p.AllowList[borrower]
}

// MintShares issues LP shares for a deposit against the pool's base balance
// BEFORE the deposit lands. Returns the shares minted.
func (p *Pool) MintShares(provider uuid.UUID, amount, baseBalance int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: deposit %d", ErrInvalidAmount, amount)
	}
	shares := fpmath.SharesForDeposit(amount, p.TotalShares, baseBalance)
	if shares <= 0 {
		// A deposit so small it mints nothing would donate value to
		// existing holders.
		return 0, fmt.Errorf("%w: deposit %d mints zero shares", ErrInvalidAmount, amount)
	}
	p.TotalShares += shares
	p.Shares[provider] += shares
	return shares, nil
}

// ShareBalance returns a provider's LP share holding
func (p *Pool) ShareBalance(provider uuid.UUID) int64 {
	return p.Shares[provider]
}
