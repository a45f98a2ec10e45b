package lending

import (
	"lendledger/core/types"
	"lendledger/crypto"
)

// LoanStatus tracks where a loan is in its lifecycle.
type LoanStatus uint8

const (
	StatusPending LoanStatus = iota
	StatusActive
	StatusRepaid
	StatusDefaulted
	StatusLiquidated
)

func (s LoanStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Open reports whether the loan still sits in its participants' active sets.
func (s LoanStatus) Open() bool { return s == StatusPending || s == StatusActive }

// RateType selects how the effective rate is derived.
type RateType uint8

const (
	RateFixed RateType = iota
	RateVariable
)

func (r RateType) String() string {
	if r == RateVariable {
		return "variable"
	}
	return "fixed"
}

// InterestType selects the accrual regime.
type InterestType uint8

const (
	InterestSimple InterestType = iota
	InterestCompound
)

func (i InterestType) String() string {
	if i == InterestCompound {
		return "compound"
	}
	return "simple"
}

// CompoundFrequency selects the compounding period of compound loans.
type CompoundFrequency uint8

const (
	CompoundDaily CompoundFrequency = iota
	CompoundWeekly
	CompoundMonthly
	CompoundQuarterly
	CompoundAnnually
)

// Blocks returns the compounding period length.
func (f CompoundFrequency) Blocks() uint64 {
	switch f {
	case CompoundDaily:
		return BlocksPerDay
	case CompoundWeekly:
		return BlocksPerWeek
	case CompoundMonthly:
		return BlocksPerMonth
	case CompoundQuarterly:
		return BlocksPerQuarter
	case CompoundAnnually:
		return BlocksPerYear
	default:
		return 0
	}
}

// Valid reports whether f is a known frequency.
func (f CompoundFrequency) Valid() bool { return f.Blocks() != 0 }

func (f CompoundFrequency) String() string {
	switch f {
	case CompoundDaily:
		return "daily"
	case CompoundWeekly:
		return "weekly"
	case CompoundMonthly:
		return "monthly"
	case CompoundQuarterly:
		return "quarterly"
	case CompoundAnnually:
		return "annually"
	default:
		return "unknown"
	}
}

// ParseCompoundFrequency maps the textual name back to a frequency.
func ParseCompoundFrequency(name string) (CompoundFrequency, bool) {
	for f := CompoundDaily; f <= CompoundAnnually; f++ {
		if f.String() == name {
			return f, true
		}
	}
	return 0, false
}

// PaymentStructure selects how the periodic minimum payment is computed.
type PaymentStructure uint8

const (
	PrincipalAndInterest PaymentStructure = iota
	InterestOnly
)

func (p PaymentStructure) String() string {
	if p == InterestOnly {
		return "interest_only"
	}
	return "principal_and_interest"
}

// PaymentKind classifies entries in the payment log.
type PaymentKind uint8

const (
	PaymentPartial PaymentKind = iota
	PaymentScheduled
	PaymentFull
)

func (k PaymentKind) String() string {
	switch k {
	case PaymentScheduled:
		return "scheduled"
	case PaymentFull:
		return "full"
	default:
		return "partial"
	}
}

// AdjustmentReason records why an interest rate moved.
type AdjustmentReason uint8

const (
	ReasonMarketConditions AdjustmentReason = iota
	ReasonCreditScoreChange
	ReasonRiskReassessment
	ReasonRegulatoryChange
	ReasonVariableConversion
	ReasonOther
)

func (r AdjustmentReason) String() string {
	switch r {
	case ReasonMarketConditions:
		return "market_conditions"
	case ReasonCreditScoreChange:
		return "credit_score_change"
	case ReasonRiskReassessment:
		return "risk_reassessment"
	case ReasonRegulatoryChange:
		return "regulatory_change"
	case ReasonVariableConversion:
		return "variable_conversion"
	default:
		return "other"
	}
}

// ParseAdjustmentReason maps the textual name back to a reason. Unknown names
// map to ReasonOther.
func ParseAdjustmentReason(name string) AdjustmentReason {
	for r := ReasonMarketConditions; r < ReasonOther; r++ {
		if r.String() == name {
			return r
		}
	}
	return ReasonOther
}

// Payment is one entry of the payment log together with how the waterfall
// split it.
type Payment struct {
	Block            uint64
	Amount           types.Money
	Kind             PaymentKind
	FeePortion       types.Money
	InterestPortion  types.Money
	PrincipalPortion types.Money
}

// RateAdjustment is one entry of the rate history. RiskBefore and RiskAfter
// are equal unless the adjustment came from a risk update.
type RateAdjustment struct {
	OldRate    uint64
	NewRate    uint64
	Reason     AdjustmentReason
	Block      uint64
	RiskBefore uint64
	RiskAfter  uint64
}

type RefinanceRecord struct {
	OldRate uint64
	NewRate uint64
	Fee     types.Money
	Block   uint64
}

// Loan is the stored loan record. Fields are RLP encoded in declaration
// order; new fields must be appended with an `rlp:"optional"` tag.
type Loan struct {
	ID         uint64
	Borrower   crypto.Address
	Lender     crypto.Address
	Amount     types.Money
	Collateral types.Money

	// InterestRate is the effective rate in basis points.
	InterestRate     uint64
	BaseInterestRate uint64
	// RiskMultiplier is per mille; 1000 means 1.0x.
	RiskMultiplier       uint64
	RateType             RateType
	InterestType         InterestType
	CompoundFrequency    CompoundFrequency
	CompoundPeriodBlocks uint64

	PaymentStructure        PaymentStructure
	InterestOnlyPeriods     uint64
	InterestOnlyPeriodsUsed uint64
	PaymentPeriodBlocks     uint64
	NextPaymentDue          uint64
	MinimumPaymentAmount    types.Money
	// CurrentPeriodPaid accumulates payments toward the current period's
	// minimum.
	CurrentPeriodPaid types.Money

	Status    LoanStatus
	CreatedAt uint64
	FundedAt  uint64
	Duration  uint64
	DueDate   uint64

	// Outstanding obligations. RemainingBalance is always their sum.
	PrincipalOutstanding types.Money
	InterestOutstanding  types.Money
	FeesOutstanding      types.Money
	RemainingBalance     types.Money
	TotalPaid            types.Money
	Payments             []Payment

	TotalInterestAccrued    types.Money
	TotalCompoundedInterest types.Money
	TotalRefinanceFees      types.Money
	TotalExtensionFees      types.Money
	TotalDiscounts          types.Money
	TotalProtocolFees       types.Money
	// LastInterestUpdate is the compounding cursor.
	LastInterestUpdate      uint64
	InterestUpdateFrequency uint64
	// LastRateUpdate is the block of the last rate change, used by the
	// update frequency limit.
	LastRateUpdate          uint64
	InterestRateAdjustments []RateAdjustment

	ExtensionCount   uint64
	MaxExtensions    uint64
	ExtensionFeeRate uint64

	RefinanceCount   uint64
	MaxRefinances    uint64
	RefinanceFeeRate uint64
	RefinanceHistory []RefinanceRecord

	TotalLateFees types.Money
	// LateFeeRate is charged per overdue day in basis points of Amount.
	LateFeeRate    uint64
	MaxLateFeeRate uint64
	// OverdueSince is zero while the loan is not overdue.
	OverdueSince uint64
	// LateFeeBpsApplied is the cumulative late fee ratio charged so far and
	// LateFeeEpisodeBaseBps its value when the current overdue episode began.
	LateFeeBpsApplied     uint64
	LateFeeEpisodeBaseBps uint64
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Payments = append([]Payment(nil), l.Payments...)
	clone.InterestRateAdjustments = append([]RateAdjustment(nil), l.InterestRateAdjustments...)
	clone.RefinanceHistory = append([]RefinanceRecord(nil), l.RefinanceHistory...)
	return &clone
}

// HasLender reports whether the loan has been funded by someone.
func (l *Loan) HasLender() bool { return l != nil && !l.Lender.IsZero() }

func (l *Loan) refreshBalance() {
	l.RemainingBalance = types.SumMoney(l.PrincipalOutstanding, l.InterestOutstanding, l.FeesOutstanding)
}

// UserProfile aggregates a principal's lending activity.
type UserProfile struct {
	Address       crypto.Address
	TotalBorrowed types.Money
	TotalLent     types.Money
	// ActiveLoans holds the ids of open loans in insertion order.
	ActiveLoans   []uint64
	CreditScore   uint64
	IsBlacklisted bool
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ActiveLoans = append([]uint64(nil), p.ActiveLoans...)
	return &clone
}

// HasActiveLoan reports whether id is in the active set.
func (p *UserProfile) HasActiveLoan(id uint64) bool {
	for _, existing := range p.ActiveLoans {
		if existing == id {
			return true
		}
	}
	return false
}

func (p *UserProfile) addActiveLoan(id uint64) {
	if !p.HasActiveLoan(id) {
		p.ActiveLoans = append(p.ActiveLoans, id)
	}
}

func (p *UserProfile) removeActiveLoan(id uint64) {
	kept := p.ActiveLoans[:0]
	for _, existing := range p.ActiveLoans {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	p.ActiveLoans = kept
}

// Text forms keep JSON renderings of loans readable.

func (s LoanStatus) MarshalText() ([]byte, error)        { return []byte(s.String()), nil }
func (r RateType) MarshalText() ([]byte, error)          { return []byte(r.String()), nil }
func (i InterestType) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (f CompoundFrequency) MarshalText() ([]byte, error) { return []byte(f.String()), nil }
func (p PaymentStructure) MarshalText() ([]byte, error)  { return []byte(p.String()), nil }
func (k PaymentKind) MarshalText() ([]byte, error)       { return []byte(k.String()), nil }
func (r AdjustmentReason) MarshalText() ([]byte, error)  { return []byte(r.String()), nil }
