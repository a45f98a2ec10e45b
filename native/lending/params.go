package lending

import (
	"errors"
	"fmt"
)

// Block constants used by compounding frequencies and day counting.
const (
	BlocksPerDay       uint64 = 14_400
	BlocksPerWeek      uint64 = 100_800
	BlocksPerMonth     uint64 = 432_000
	BlocksPerQuarter   uint64 = 1_296_000
	BlocksPerYear      uint64 = 5_184_000
	basisPointsDivisor uint64 = 10_000
	perMilleDivisor    uint64 = 1_000
)

// Params captures the construction-time configuration of the engine. Loan
// level knobs (extensions, refinances, late fees) are copied into each loan at
// creation so later parameter changes never rewrite existing agreements.
type Params struct {
	// ProtocolFeeBps is withheld from every repayment before the lender is
	// paid.
	ProtocolFeeBps uint64
	// MinCollateralRatioBps is the minimum collateral to principal ratio
	// accepted at creation (15_000 = 150%).
	MinCollateralRatioBps uint64
	DefaultCreditScore    uint64
	YearBlocks            uint64
	MaxDurationBlocks     uint64
	MaxRateBps            uint64

	MaxExtensions         uint64
	ExtensionFeeRateBps   uint64
	ExtensionPeriodBlocks uint64

	MaxRefinances       uint64
	RefinanceFeeRateBps uint64

	// LateFeeRateBps is charged per full overdue day, capped cumulatively at
	// MaxLateFeeRateBps of the original principal.
	LateFeeRateBps    uint64
	MaxLateFeeRateBps uint64
	// GracePeriodBlocks after the due date before anyone may default or
	// liquidate the loan.
	GracePeriodBlocks uint64

	InterestUpdateFrequency      uint64
	PaymentPeriodBlocks          uint64
	EarlyRepaymentDiscountCapBps uint64
	// MaxRiskMultiplier bounds the per-mille risk multiplier of variable
	// loans.
	MaxRiskMultiplier uint64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		ProtocolFeeBps:               50,
		MinCollateralRatioBps:        15_000,
		DefaultCreditScore:           700,
		YearBlocks:                   BlocksPerYear,
		MaxDurationBlocks:            1_000_000,
		MaxRateBps:                   10_000,
		MaxExtensions:                3,
		ExtensionFeeRateBps:          100,
		ExtensionPeriodBlocks:        BlocksPerMonth,
		MaxRefinances:                2,
		RefinanceFeeRateBps:          50,
		LateFeeRateBps:               10,
		MaxLateFeeRateBps:            2_000,
		GracePeriodBlocks:            BlocksPerWeek,
		InterestUpdateFrequency:      BlocksPerDay,
		PaymentPeriodBlocks:          BlocksPerMonth,
		EarlyRepaymentDiscountCapBps: 500,
		MaxRiskMultiplier:            5_000,
	}
}

// Validate rejects inconsistent configurations.
func (p Params) Validate() error {
	var errs []error
	if p.ProtocolFeeBps > basisPointsDivisor {
		errs = append(errs, fmt.Errorf("protocol fee %d bps exceeds 100%%", p.ProtocolFeeBps))
	}
	if p.MinCollateralRatioBps == 0 {
		errs = append(errs, errors.New("min collateral ratio must be positive"))
	}
	if p.YearBlocks == 0 {
		errs = append(errs, errors.New("year blocks must be positive"))
	}
	if p.MaxDurationBlocks == 0 {
		errs = append(errs, errors.New("max duration must be positive"))
	}
	if p.MaxRateBps == 0 || p.MaxRateBps > basisPointsDivisor {
		errs = append(errs, fmt.Errorf("max rate must be within (0, %d] bps", basisPointsDivisor))
	}
	if p.ExtensionFeeRateBps > basisPointsDivisor || p.RefinanceFeeRateBps > basisPointsDivisor {
		errs = append(errs, errors.New("extension and refinance fees must not exceed 100%"))
	}
	if p.MaxExtensions > 0 && p.ExtensionPeriodBlocks == 0 {
		errs = append(errs, errors.New("extension period must be positive when extensions are allowed"))
	}
	if p.MaxLateFeeRateBps > basisPointsDivisor {
		errs = append(errs, errors.New("late fee cap must not exceed 100%"))
	}
	if p.PaymentPeriodBlocks == 0 {
		errs = append(errs, errors.New("payment period must be positive"))
	}
	if p.EarlyRepaymentDiscountCapBps > basisPointsDivisor {
		errs = append(errs, errors.New("early repayment discount cap must not exceed 100%"))
	}
	if p.MaxRiskMultiplier < perMilleDivisor {
		errs = append(errs, errors.New("max risk multiplier must allow at least 1.0x"))
	}
	if p.DefaultCreditScore < minCreditScore || p.DefaultCreditScore > maxCreditScore {
		errs = append(errs, fmt.Errorf("default credit score must be within [%d, %d]", minCreditScore, maxCreditScore))
	}
	if len(errs) > 0 {
		return fmt.Errorf("lending params: %w", errors.Join(errs...))
	}
	return nil
}
