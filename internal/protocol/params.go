package protocol

import (
	"fmt"

	fpmath "FlashPool/internal/math"
)

// Params are the protocol-wide policy knobs. They are fixed at process start;
// per-pool state carries only the fee rate chosen at initialization.
type Params struct {
	// StakerShareBps is the portion of every loan fee routed to the stake
	// vault; the remainder goes to the treasury.
	StakerShareBps int64

	// BaseCollateralRatioBps is the collateral demanded from a borrower at
	// neutral reputation, as a fraction of principal.
	BaseCollateralRatioBps int64

	// MinCollateralRatioBps floors the effective ratio regardless of how
	// high a borrower's reputation multiplier climbs.
	MinCollateralRatioBps int64

	// BorrowThresholdBps is the minimum reputation multiplier allowed to
	// borrow at all.
	BorrowThresholdBps int64

	// RepayStepBps / DefaultStepBps adjust the multiplier on resolution.
	RepayStepBps   int64
	DefaultStepBps int64

	// MultiplierFloorBps / MultiplierCeilBps clamp the multiplier.
	MultiplierFloorBps int64
	MultiplierCeilBps  int64

	// LoanWindowSlots is how many slots a loan stays repayable before any
	// caller may resolve it as a default.
	LoanWindowSlots int64
}

// DefaultParams returns the production policy set
func DefaultParams() Params {
	return Params{
		StakerShareBps:         5_000,
		BaseCollateralRatioBps: 5_000,
		MinCollateralRatioBps:  2_500,
		BorrowThresholdBps:     6_000,
		RepayStepBps:           500,
		DefaultStepBps:         -2_000,
		MultiplierFloorBps:     5_000,
		MultiplierCeilBps:      20_000,
		LoanWindowSlots:        150,
	}
}

// Validate rejects parameter sets that could mint value or deadlock loans
func (p Params) Validate() error {
	if p.StakerShareBps < 0 || p.StakerShareBps > fpmath.BpsScale {
		return fmt.Errorf("staker share %d out of range [0, %d]", p.StakerShareBps, fpmath.BpsScale)
	}
	if p.BaseCollateralRatioBps <= 0 {
		return fmt.Errorf("base collateral ratio must be positive, got %d", p.BaseCollateralRatioBps)
	}
	if p.MinCollateralRatioBps <= 0 || p.MinCollateralRatioBps > p.BaseCollateralRatioBps {
		return fmt.Errorf("min collateral ratio %d must be in (0, %d]", p.MinCollateralRatioBps, p.BaseCollateralRatioBps)
	}
	if p.MultiplierFloorBps <= 0 || p.MultiplierFloorBps > p.MultiplierCeilBps {
		return fmt.Errorf("multiplier clamp [%d, %d] is inverted", p.MultiplierFloorBps, p.MultiplierCeilBps)
	}
	if p.BorrowThresholdBps < p.MultiplierFloorBps || p.BorrowThresholdBps > p.MultiplierCeilBps {
		return fmt.Errorf("borrow threshold %d outside multiplier clamp [%d, %d]",
			p.BorrowThresholdBps, p.MultiplierFloorBps, p.MultiplierCeilBps)
	}
	if p.LoanWindowSlots <= 0 {
		return fmt.Errorf("loan window must be positive, got %d", p.LoanWindowSlots)
	}
	return nil
}
