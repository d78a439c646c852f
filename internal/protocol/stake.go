package protocol

import (
	"fmt"
	"math/big"

	fpmath "FlashPool/internal/math"

	"github.com/google/uuid"
)

// StakePosition is one staker's lot in a pool's vault
type StakePosition struct {
	Amount     int64
	RewardDebt int64
	// LastStakeSlot records when the position last grew; exposed for
	// downstream cooldown policies, unused by the core itself.
	LastStakeSlot int64
}

// StakeVault tracks staked principal and the reward-per-share accumulator for
// one pool. Distributions are O(1): each fee bump moves the accumulator and
// stakers settle lazily when their position changes.
type StakeVault struct {
	TotalStaked    int64
	AccPerShare    *big.Int
	RewardsAccrued int64 // Lifetime fees routed to stakers
	Positions      map[uuid.UUID]*StakePosition
}

func NewStakeVault() *StakeVault {
	return &StakeVault{
		AccPerShare: new(big.Int),
		Positions:   make(map[uuid.UUID]*StakePosition),
	}
}

// Distribute spreads a staker fee across all current stakers by bumping the
// accumulator. With no stakers the amount stays in the vault account and is
// reported back so the caller can reroute it to the treasury.
func (v *StakeVault) Distribute(amount int64) (undistributed int64) {
	if amount <= 0 {
		return 0
	}
	if v.TotalStaked == 0 {
		return amount
	}
	v.AccPerShare.Add(v.AccPerShare, fpmath.AccumulatorDelta(amount, v.TotalStaked))
	v.RewardsAccrued += amount
	return 0
}

// Pending returns a staker's settled-but-unpaid rewards
func (v *StakeVault) Pending(staker uuid.UUID) int64 {
	pos, ok := v.Positions[staker]
	if !ok {
		return 0
	}
	return fpmath.PendingRewards(pos.Amount, v.AccPerShare, pos.RewardDebt)
}

// Stake grows a position, settling pending rewards first. Returns the
// rewards owed to the staker's wallet as part of the same operation.
func (v *StakeVault) Stake(staker uuid.UUID, amount, slot int64) (pendingPaid int64, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: stake %d", ErrInvalidAmount, amount)
	}

	pos, ok := v.Positions[staker]
	if !ok {
		pos = &StakePosition{}
		v.Positions[staker] = pos
	}

	pending := fpmath.PendingRewards(pos.Amount, v.AccPerShare, pos.RewardDebt)

	pos.Amount += amount
	pos.LastStakeSlot = slot
	pos.RewardDebt = fpmath.RewardDebt(pos.Amount, v.AccPerShare)
	v.TotalStaked += amount

	return pending, nil
}

// Unstake shrinks a position (amount 0 = claim rewards only) and settles
// pending rewards. Returns principal released and rewards owed.
func (v *StakeVault) Unstake(staker uuid.UUID, amount int64) (principal, pendingPaid int64, err error) {
	if amount < 0 {
		return 0, 0, fmt.Errorf("%w: unstake %d", ErrInvalidAmount, amount)
	}

	pos, ok := v.Positions[staker]
	if !ok {
		return 0, 0, ErrNoStake
	}
	if amount > pos.Amount {
		return 0, 0, fmt.Errorf("%w: unstake %d exceeds position %d", ErrInsufficientFunds, amount, pos.Amount)
	}

	pending := fpmath.PendingRewards(pos.Amount, v.AccPerShare, pos.RewardDebt)

	pos.Amount -= amount
	v.TotalStaked -= amount

	if pos.Amount == 0 {
		delete(v.Positions, staker)
	} else {
		pos.RewardDebt = fpmath.RewardDebt(pos.Amount, v.AccPerShare)
	}

	return amount, pending, nil
}
