package math

import "math/big"

// SharesForDeposit computes LP shares minted for a liquidity deposit.
// First deposit mints 1:1; later deposits mint pro-rata against the pool's
// current base balance so the share price never moves on a deposit.
func SharesForDeposit(amount, totalShares, baseBalance int64) int64 {
	if totalShares == 0 || baseBalance == 0 {
		return amount
	}
	return MulDiv(amount, totalShares, baseBalance, RoundDown)
}

// AssetsForShares converts LP shares back to base tokens at the current rate
func AssetsForShares(shares, totalShares, baseBalance int64) int64 {
	if totalShares == 0 {
		return 0
	}
	return MulDiv(shares, baseBalance, totalShares, RoundDown)
}

// FeeForPrincipal computes the flash-loan fee: principal * feeRateBps / 10000
func FeeForPrincipal(principal, feeRateBps int64) int64 {
	return BpsOf(principal, feeRateBps)
}

// SplitFee divides a collected fee between the treasury and the stakers.
// The staker share floors; the treasury takes the remainder so the split is
// exact and no dust is left behind.
func SplitFee(fee, stakerShareBps int64) (treasury, stakers int64) {
	stakers = BpsOf(fee, stakerShareBps)
	treasury = fee - stakers
	return treasury, stakers
}

// RequiredCollateral computes the collateral a borrower must escrow for a
// principal. The base ratio is divided by the borrower's reputation multiplier
// (both in bps), then floored at the protocol minimum. Rounds up so a borrower
// can never post one unit less than the effective ratio demands.
func RequiredCollateral(principal, baseRatioBps, minRatioBps, multiplierBps int64) int64 {
	effRatio := MulDiv(baseRatioBps, BpsScale, multiplierBps, RoundUp)
	if effRatio < minRatioBps {
		effRatio = minRatioBps
	}
	return MulDiv(principal, effRatio, BpsScale, RoundUp)
}

// AccumulatorDelta computes the reward-per-share increment for a distribution:
// amount * RewardScale / totalStaked. Uses big.Int end to end since the
// accumulator itself can exceed int64 range over a pool's lifetime.
func AccumulatorDelta(amount, totalStaked int64) *big.Int {
	if totalStaked <= 0 {
		return new(big.Int)
	}
	delta := new(big.Int).Mul(big.NewInt(amount), big.NewInt(RewardScale))
	return delta.Quo(delta, big.NewInt(totalStaked))
}

// PendingRewards computes a staker's unpaid rewards:
// stake * accPerShare / RewardScale - rewardDebt, floored at zero.
func PendingRewards(stake int64, accPerShare *big.Int, rewardDebt int64) int64 {
	if stake <= 0 || accPerShare == nil {
		return 0
	}
	entitled := new(big.Int).Mul(big.NewInt(stake), accPerShare)
	entitled.Quo(entitled, big.NewInt(RewardScale))
	entitled.Sub(entitled, big.NewInt(rewardDebt))
	if entitled.Sign() < 0 {
		return 0
	}
	return entitled.Int64()
}

// RewardDebt computes the debt checkpoint recorded when a stake changes:
// stake * accPerShare / RewardScale.
func RewardDebt(stake int64, accPerShare *big.Int) int64 {
	if stake <= 0 || accPerShare == nil {
		return 0
	}
	debt := new(big.Int).Mul(big.NewInt(stake), accPerShare)
	debt.Quo(debt, big.NewInt(RewardScale))
	return debt.Int64()
}
