package protocol

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// State aggregates all protocol bookkeeping that lives outside the ledger:
// pool configuration and shares, stake vaults, the loan book, borrower
// reputation, and the slot clock. Mutated only by the deterministic core.
type State struct {
	Params     Params
	Pools      map[uuid.UUID]*Pool
	Vaults     map[uuid.UUID]*StakeVault
	Loans      *LoanBook
	Reputation *ReputationBook
	Clock      SlotClock
}

func NewState(params Params) *State {
	return &State{
		Params:     params,
		Pools:      make(map[uuid.UUID]*Pool),
		Vaults:     make(map[uuid.UUID]*StakeVault),
		Loans:      NewLoanBook(),
		Reputation: NewReputationBook(params),
	}
}

// InitializePool registers a new pool and its stake vault
func (s *State) InitializePool(id, admin, treasury uuid.UUID, asset string, feeRateBps int64, allowList []uuid.UUID) (*Pool, error) {
	if _, exists := s.Pools[id]; exists {
		return nil, fmt.Errorf("%w: pool %s", ErrAlreadyInitialized, id)
	}

	pool, err := NewPool(id, admin, treasury, asset, feeRateBps, allowList)
	if err != nil {
		return nil, err
	}

	s.Pools[id] = pool
	s.Vaults[id] = NewStakeVault()
	return pool, nil
}

// Pool returns an initialized pool or ErrNotInitialized
func (s *State) Pool(id uuid.UUID) (*Pool, error) {
	pool, ok := s.Pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", ErrNotInitialized, id)
	}
	return pool, nil
}

// Vault returns a pool's stake vault or ErrNotInitialized
func (s *State) Vault(id uuid.UUID) (*StakeVault, error) {
	vault, ok := s.Vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", ErrNotInitialized, id)
	}
	return vault, nil
}

// --- Deterministic Digest ---

// AppendDigest serializes the protocol state a batch could have touched into
// canonical bytes for state hashing. Fields are fixed-width and pools/loans
// are addressed explicitly, so identical state always digests identically.
func (s *State) AppendDigest(buf []byte, poolID *uuid.UUID, loanID *uuid.UUID) []byte {
	buf = appendInt64(buf, s.Clock.Current)

	if poolID != nil {
		if pool, ok := s.Pools[*poolID]; ok {
			buf = append(buf, pool.ID[:]...)
			buf = appendInt64(buf, pool.TotalShares)
			buf = appendInt64(buf, pool.LoansIssued)
			buf = appendInt64(buf, pool.LoansRepaid)
			buf = appendInt64(buf, pool.LoansDefaulted)
			buf = appendInt64(buf, pool.FeesCollected)
			buf = appendInt64(buf, pool.LossWrittenOff)
		}
		if vault, ok := s.Vaults[*poolID]; ok {
			buf = appendInt64(buf, vault.TotalStaked)
			buf = appendInt64(buf, vault.RewardsAccrued)
			acc := vault.AccPerShare.Bytes()
			buf = append(buf, byte(len(acc)))
			buf = append(buf, acc...)
		}
	}

	if loanID != nil {
		if loan, ok := s.Loans.Loans[*loanID]; ok {
			buf = append(buf, loan.ID[:]...)
			buf = append(buf, byte(loan.Status))
			buf = appendInt64(buf, loan.Principal)
			buf = appendInt64(buf, loan.Fee)
			buf = appendInt64(buf, loan.Collateral)
			buf = appendInt64(buf, loan.CollateralSeized)
			buf = appendInt64(buf, loan.Shortfall)
			buf = appendInt64(buf, loan.ExpirySlot)
		}
	}

	return buf
}

func appendInt64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

// --- Snapshot Serialization ---

// Snapshot is the JSON-friendly form of State for persistence
type Snapshot struct {
	Slot        int64            `json:"slot"`
	Pools       []PoolSnapshot   `json:"pools"`
	Loans       []LoanSnapshot   `json:"loans"`
	Reputations map[string]int64 `json:"reputations"`
}

type PoolSnapshot struct {
	ID             string                   `json:"id"`
	Admin          string                   `json:"admin"`
	Treasury       string                   `json:"treasury"`
	Asset          string                   `json:"asset"`
	FeeRateBps     int64                    `json:"fee_rate_bps"`
	TotalShares    int64                    `json:"total_shares"`
	Shares         map[string]int64         `json:"shares"`
	AllowList      []string                 `json:"allow_list"`
	LoansIssued    int64                    `json:"loans_issued"`
	LoansRepaid    int64                    `json:"loans_repaid"`
	LoansDefaulted int64                    `json:"loans_defaulted"`
	FeesCollected  int64                    `json:"fees_collected"`
	LossWrittenOff int64                    `json:"loss_written_off"`
	TotalStaked    int64                    `json:"total_staked"`
	AccPerShare    string                   `json:"acc_per_share"`
	RewardsAccrued int64                    `json:"rewards_accrued"`
	Stakes         map[string]StakeSnapshot `json:"stakes"`
}

type StakeSnapshot struct {
	Amount        int64 `json:"amount"`
	RewardDebt    int64 `json:"reward_debt"`
	LastStakeSlot int64 `json:"last_stake_slot"`
}

type LoanSnapshot struct {
	ID               string `json:"id"`
	Pool             string `json:"pool"`
	Borrower         string `json:"borrower"`
	Principal        int64  `json:"principal"`
	Fee              int64  `json:"fee"`
	Collateral       int64  `json:"collateral"`
	IssuedSlot       int64  `json:"issued_slot"`
	ExpirySlot       int64  `json:"expiry_slot"`
	Status           int32  `json:"status"`
	ResolvedSlot     int64  `json:"resolved_slot"`
	CollateralSeized int64  `json:"collateral_seized"`
	Shortfall        int64  `json:"shortfall"`
}

// Export captures the state in serializable form
func (s *State) Export() *Snapshot {
	snap := &Snapshot{
		Slot:        s.Clock.Current,
		Pools:       make([]PoolSnapshot, 0, len(s.Pools)),
		Loans:       make([]LoanSnapshot, 0, len(s.Loans.Loans)),
		Reputations: make(map[string]int64, len(s.Reputation.Multipliers)),
	}

	for id, pool := range s.Pools {
		vault := s.Vaults[id]
		ps := PoolSnapshot{
			ID:             pool.ID.String(),
			Admin:          pool.Admin.String(),
			Treasury:       pool.Treasury.String(),
			Asset:          pool.Asset,
			FeeRateBps:     pool.FeeRateBps,
			TotalShares:    pool.TotalShares,
			Shares:         make(map[string]int64, len(pool.Shares)),
			AllowList:      make([]string, 0, len(pool.AllowList)),
			LoansIssued:    pool.LoansIssued,
			LoansRepaid:    pool.LoansRepaid,
			LoansDefaulted: pool.LoansDefaulted,
			FeesCollected:  pool.FeesCollected,
			LossWrittenOff: pool.LossWrittenOff,
			TotalStaked:    vault.TotalStaked,
			AccPerShare:    vault.AccPerShare.String(),
			RewardsAccrued: vault.RewardsAccrued,
			Stakes:         make(map[string]StakeSnapshot, len(vault.Positions)),
		}
		for provider, shares := range pool.Shares {
			ps.Shares[provider.String()] = shares
		}
		for borrower := range pool.AllowList {
			ps.AllowList = append(ps.AllowList, borrower.String())
		}
		sort.Strings(ps.AllowList)
		for staker, pos := range vault.Positions {
			ps.Stakes[staker.String()] = StakeSnapshot{
				Amount:        pos.Amount,
				RewardDebt:    pos.RewardDebt,
				LastStakeSlot: pos.LastStakeSlot,
			}
		}
		snap.Pools = append(snap.Pools, ps)
	}
	sort.Slice(snap.Pools, func(i, j int) bool { return snap.Pools[i].ID < snap.Pools[j].ID })

	for _, loan := range s.Loans.Loans {
		snap.Loans = append(snap.Loans, LoanSnapshot{
			ID:               loan.ID.String(),
			Pool:             loan.Pool.String(),
			Borrower:         loan.Borrower.String(),
			Principal:        loan.Principal,
			Fee:              loan.Fee,
			Collateral:       loan.Collateral,
			IssuedSlot:       loan.IssuedSlot,
			ExpirySlot:       loan.ExpirySlot,
			Status:           int32(loan.Status),
			ResolvedSlot:     loan.ResolvedSlot,
			CollateralSeized: loan.CollateralSeized,
			Shortfall:        loan.Shortfall,
		})
	}
	sort.Slice(snap.Loans, func(i, j int) bool { return snap.Loans[i].ID < snap.Loans[j].ID })

	for borrower, m := range s.Reputation.Multipliers {
		snap.Reputations[borrower.String()] = m
	}

	return snap
}

// Restore rebuilds state from a snapshot
func (s *State) Restore(snap *Snapshot) error {
	s.Clock.Current = snap.Slot

	for _, ps := range snap.Pools {
		poolID, err := uuid.Parse(ps.ID)
		if err != nil {
			return fmt.Errorf("snapshot pool id %q: %w", ps.ID, err)
		}
		admin, err := uuid.Parse(ps.Admin)
		if err != nil {
			return fmt.Errorf("snapshot pool admin %q: %w", ps.Admin, err)
		}
		treasury, err := uuid.Parse(ps.Treasury)
		if err != nil {
			return fmt.Errorf("snapshot pool treasury %q: %w", ps.Treasury, err)
		}

		pool := &Pool{
			ID:             poolID,
			Admin:          admin,
			Treasury:       treasury,
			Asset:          ps.Asset,
			FeeRateBps:     ps.FeeRateBps,
			TotalShares:    ps.TotalShares,
			Shares:         make(map[uuid.UUID]int64, len(ps.Shares)),
			AllowList:      make(map[uuid.UUID]bool, len(ps.AllowList)),
			LoansIssued:    ps.LoansIssued,
			LoansRepaid:    ps.LoansRepaid,
			LoansDefaulted: ps.LoansDefaulted,
			FeesCollected:  ps.FeesCollected,
			LossWrittenOff: ps.LossWrittenOff,
		}
		for provider, shares := range ps.Shares {
			pid, err := uuid.Parse(provider)
			if err != nil {
				return fmt.Errorf("snapshot provider %q: %w", provider, err)
			}
			pool.Shares[pid] = shares
		}
		for _, borrower := range ps.AllowList {
			bid, err := uuid.Parse(borrower)
			if err != nil {
				return fmt.Errorf("snapshot borrower %q: %w", borrower, err)
			}
			pool.AllowList[bid] = true
		}

		vault := NewStakeVault()
		vault.TotalStaked = ps.TotalStaked
		vault.RewardsAccrued = ps.RewardsAccrued
		acc, ok := new(big.Int).SetString(ps.AccPerShare, 10)
		if !ok {
			return fmt.Errorf("snapshot accumulator %q is not an integer", ps.AccPerShare)
		}
		vault.AccPerShare = acc
		for staker, ss := range ps.Stakes {
			sid, err := uuid.Parse(staker)
			if err != nil {
				return fmt.Errorf("snapshot staker %q: %w", staker, err)
			}
			vault.Positions[sid] = &StakePosition{
				Amount:        ss.Amount,
				RewardDebt:    ss.RewardDebt,
				LastStakeSlot: ss.LastStakeSlot,
			}
		}

		s.Pools[poolID] = pool
		s.Vaults[poolID] = vault
	}

	for _, ls := range snap.Loans {
		loanID, err := uuid.Parse(ls.ID)
		if err != nil {
			return fmt.Errorf("snapshot loan id %q: %w", ls.ID, err)
		}
		poolID, err := uuid.Parse(ls.Pool)
		if err != nil {
			return fmt.Errorf("snapshot loan pool %q: %w", ls.Pool, err)
		}
		borrower, err := uuid.Parse(ls.Borrower)
		if err != nil {
			return fmt.Errorf("snapshot loan borrower %q: %w", ls.Borrower, err)
		}

		loan := &Loan{
			ID:               loanID,
			Pool:             poolID,
			Borrower:         borrower,
			Principal:        ls.Principal,
			Fee:              ls.Fee,
			Collateral:       ls.Collateral,
			IssuedSlot:       ls.IssuedSlot,
			ExpirySlot:       ls.ExpirySlot,
			Status:           LoanStatus(ls.Status),
			ResolvedSlot:     ls.ResolvedSlot,
			CollateralSeized: ls.CollateralSeized,
			Shortfall:        ls.Shortfall,
		}
		s.Loans.Loans[loanID] = loan
		if loan.Status == LoanStatusIssued {
			open := s.Loans.open[poolID]
			if open == nil {
				open = make(map[uuid.UUID]struct{})
				s.Loans.open[poolID] = open
			}
			open[loanID] = struct{}{}
		}
	}

	for borrower, m := range snap.Reputations {
		bid, err := uuid.Parse(borrower)
		if err != nil {
			return fmt.Errorf("snapshot reputation borrower %q: %w", borrower, err)
		}
		s.Reputation.Multipliers[bid] = m
	}

	return nil
}
