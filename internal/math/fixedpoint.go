package math

import (
	"math/big"
	"sync"
)

// BpsScale is the denominator for basis-point rates (10000 = 100%)
const BpsScale int64 = 10_000

// RewardScale is the fixed-point scale of the reward-per-share accumulator
const RewardScale int64 = 1_000_000_000_000 // 1e12

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// DivMod already floors for non-negative inputs
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Floor (default for payouts)
	RoundUp
	RoundHalfEven // Banker's rounding
)

// MulDiv computes a * b / denominator through an int128 intermediate.
// All inputs are expected non-negative.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	numerator := MultiplyInt128(a, b)
	result := DivideInt128(numerator, denominator, roundingMode)
	putInt128(numerator)
	return result
}

// BpsOf returns amount * bps / 10000, rounded down. Payout-side rounding
// always floors so the protocol never over-distributes.
func BpsOf(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsScale, RoundDown)
}

// ClampInt64 bounds v to [lo, hi]
func ClampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
