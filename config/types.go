package config

import (
	"lendledger/native/common"
	"lendledger/native/lending"
)

// Lending mirrors lending.Params in TOML form. Block counts are in blocks and
// rates in basis points unless noted.
type Lending struct {
	ProtocolFeeBps        uint64 `toml:"ProtocolFeeBps"`
	MinCollateralRatioBps uint64 `toml:"MinCollateralRatioBps"`
	DefaultCreditScore    uint64 `toml:"DefaultCreditScore"`
	YearBlocks            uint64 `toml:"YearBlocks"`
	MaxDurationBlocks     uint64 `toml:"MaxDurationBlocks"`
	MaxRateBps            uint64 `toml:"MaxRateBps"`

	MaxExtensions         uint64 `toml:"MaxExtensions"`
	ExtensionFeeRateBps   uint64 `toml:"ExtensionFeeRateBps"`
	ExtensionPeriodBlocks uint64 `toml:"ExtensionPeriodBlocks"`

	MaxRefinances       uint64 `toml:"MaxRefinances"`
	RefinanceFeeRateBps uint64 `toml:"RefinanceFeeRateBps"`

	LateFeeRateBps    uint64 `toml:"LateFeeRateBps"`
	MaxLateFeeRateBps uint64 `toml:"MaxLateFeeRateBps"`
	GracePeriodBlocks uint64 `toml:"GracePeriodBlocks"`

	InterestUpdateFrequency      uint64 `toml:"InterestUpdateFrequency"`
	PaymentPeriodBlocks          uint64 `toml:"PaymentPeriodBlocks"`
	EarlyRepaymentDiscountCapBps uint64 `toml:"EarlyRepaymentDiscountCapBps"`
	// MaxRiskMultiplier is per mille.
	MaxRiskMultiplier uint64 `toml:"MaxRiskMultiplier"`
}

func lendingFromParams(p lending.Params) Lending {
	return Lending{
		ProtocolFeeBps:               p.ProtocolFeeBps,
		MinCollateralRatioBps:        p.MinCollateralRatioBps,
		DefaultCreditScore:           p.DefaultCreditScore,
		YearBlocks:                   p.YearBlocks,
		MaxDurationBlocks:            p.MaxDurationBlocks,
		MaxRateBps:                   p.MaxRateBps,
		MaxExtensions:                p.MaxExtensions,
		ExtensionFeeRateBps:          p.ExtensionFeeRateBps,
		ExtensionPeriodBlocks:        p.ExtensionPeriodBlocks,
		MaxRefinances:                p.MaxRefinances,
		RefinanceFeeRateBps:          p.RefinanceFeeRateBps,
		LateFeeRateBps:               p.LateFeeRateBps,
		MaxLateFeeRateBps:            p.MaxLateFeeRateBps,
		GracePeriodBlocks:            p.GracePeriodBlocks,
		InterestUpdateFrequency:      p.InterestUpdateFrequency,
		PaymentPeriodBlocks:          p.PaymentPeriodBlocks,
		EarlyRepaymentDiscountCapBps: p.EarlyRepaymentDiscountCapBps,
		MaxRiskMultiplier:            p.MaxRiskMultiplier,
	}
}

// Params converts the section into engine parameters.
func (l Lending) Params() lending.Params {
	return lending.Params{
		ProtocolFeeBps:               l.ProtocolFeeBps,
		MinCollateralRatioBps:        l.MinCollateralRatioBps,
		DefaultCreditScore:           l.DefaultCreditScore,
		YearBlocks:                   l.YearBlocks,
		MaxDurationBlocks:            l.MaxDurationBlocks,
		MaxRateBps:                   l.MaxRateBps,
		MaxExtensions:                l.MaxExtensions,
		ExtensionFeeRateBps:          l.ExtensionFeeRateBps,
		ExtensionPeriodBlocks:        l.ExtensionPeriodBlocks,
		MaxRefinances:                l.MaxRefinances,
		RefinanceFeeRateBps:          l.RefinanceFeeRateBps,
		LateFeeRateBps:               l.LateFeeRateBps,
		MaxLateFeeRateBps:            l.MaxLateFeeRateBps,
		GracePeriodBlocks:            l.GracePeriodBlocks,
		InterestUpdateFrequency:      l.InterestUpdateFrequency,
		PaymentPeriodBlocks:          l.PaymentPeriodBlocks,
		EarlyRepaymentDiscountCapBps: l.EarlyRepaymentDiscountCapBps,
		MaxRiskMultiplier:            l.MaxRiskMultiplier,
	}
}

type Pauses struct {
	Lending bool `toml:"Lending"`
}

// Modules returns the names of the paused modules.
func (p Pauses) Modules() []string {
	var modules []string
	if p.Lending {
		modules = append(modules, "lending")
	}
	return modules
}

// Quota defines per-principal limits on mutating calls.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxValuePerEpoch    uint64 `toml:"MaxValuePerEpoch"` // in base units
	EpochBlocks         uint64 `toml:"EpochBlocks"`      // e.g., 14400
}

// Runtime converts the section into the quota enforced by the daemon.
func (q Quota) Runtime() common.Quota {
	return common.Quota{
		MaxRequestsPerEpoch: q.MaxRequestsPerEpoch,
		MaxValuePerEpoch:    q.MaxValuePerEpoch,
		EpochBlocks:         q.EpochBlocks,
	}
}
