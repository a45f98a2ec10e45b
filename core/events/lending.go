package events

import (
	"strconv"

	"lendledger/core/types"
	"lendledger/crypto"
)

const (
	TypeLoanCreated             = "lending.loan.created"
	TypeLoanFunded              = "lending.loan.funded"
	TypeLoanRepaid              = "lending.loan.repaid"
	TypeLoanPartiallyRepaid     = "lending.loan.partially_repaid"
	TypeLoanExtended            = "lending.loan.extended"
	TypeLoanRefinanced          = "lending.loan.refinanced"
	TypeRateAdjusted            = "lending.loan.rate_adjusted"
	TypeRiskUpdated             = "lending.loan.risk_updated"
	TypeInterestTypeChanged     = "lending.loan.interest_type_changed"
	TypePaymentStructureChanged = "lending.loan.payment_structure_changed"
	TypeLoanDefaulted           = "lending.loan.defaulted"
	TypeLoanLiquidated          = "lending.loan.liquidated"
)

// LoanRef identifies the loan, the principal that triggered the transition
// and the block it happened at. Every lending event embeds it.
type LoanRef struct {
	LoanID uint64
	Actor  crypto.Address
	Block  uint64
}

// Loan returns the indexed loan id.
func (r LoanRef) Loan() uint64 { return r.LoanID }

func (r LoanRef) attrs() map[string]string {
	attrs := map[string]string{
		"loanId": strconv.FormatUint(r.LoanID, 10),
		"block":  strconv.FormatUint(r.Block, 10),
	}
	if !r.Actor.IsZero() {
		attrs["actor"] = r.Actor.String()
	}
	return attrs
}

// LoanEvent is implemented by every lending event.
type LoanEvent interface {
	Event
	Loan() uint64
	Event() *types.Event
}

type LoanCreated struct {
	LoanRef
	Amount     types.Money
	Collateral types.Money
	RateBps    uint64
	Duration   uint64
	DueDate    uint64
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	attrs := e.attrs()
	attrs["amount"] = e.Amount.String()
	attrs["collateral"] = e.Collateral.String()
	attrs["rateBps"] = formatUint(e.RateBps)
	attrs["duration"] = formatUint(e.Duration)
	attrs["dueDate"] = formatUint(e.DueDate)
	return &types.Event{Type: TypeLoanCreated, Attributes: attrs}
}

type LoanFunded struct {
	LoanRef
	Borrower crypto.Address
	Amount   types.Money
}

func (LoanFunded) EventType() string { return TypeLoanFunded }

func (e LoanFunded) Event() *types.Event {
	attrs := e.attrs()
	attrs["borrower"] = e.Borrower.String()
	attrs["amount"] = e.Amount.String()
	return &types.Event{Type: TypeLoanFunded, Attributes: attrs}
}

type LoanRepaid struct {
	LoanRef
	Lender      crypto.Address
	Amount      types.Money
	ProtocolFee types.Money
	Discount    types.Money
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	attrs := e.attrs()
	attrs["lender"] = e.Lender.String()
	attrs["amount"] = e.Amount.String()
	attrs["protocolFee"] = e.ProtocolFee.String()
	attrs["discount"] = e.Discount.String()
	return &types.Event{Type: TypeLoanRepaid, Attributes: attrs}
}

type LoanPartiallyRepaid struct {
	LoanRef
	Amount      types.Money
	Fees        types.Money
	Interest    types.Money
	Principal   types.Money
	Remaining   types.Money
	ProtocolFee types.Money
}

func (LoanPartiallyRepaid) EventType() string { return TypeLoanPartiallyRepaid }

func (e LoanPartiallyRepaid) Event() *types.Event {
	attrs := e.attrs()
	attrs["amount"] = e.Amount.String()
	attrs["fees"] = e.Fees.String()
	attrs["interest"] = e.Interest.String()
	attrs["principal"] = e.Principal.String()
	attrs["remaining"] = e.Remaining.String()
	attrs["protocolFee"] = e.ProtocolFee.String()
	return &types.Event{Type: TypeLoanPartiallyRepaid, Attributes: attrs}
}

type LoanExtended struct {
	LoanRef
	Fee            types.Money
	NewDueDate     uint64
	ExtensionCount uint64
}

func (LoanExtended) EventType() string { return TypeLoanExtended }

func (e LoanExtended) Event() *types.Event {
	attrs := e.attrs()
	attrs["fee"] = e.Fee.String()
	attrs["dueDate"] = formatUint(e.NewDueDate)
	attrs["extensionCount"] = formatUint(e.ExtensionCount)
	return &types.Event{Type: TypeLoanExtended, Attributes: attrs}
}

type LoanRefinanced struct {
	LoanRef
	OldRateBps uint64
	NewRateBps uint64
	Fee        types.Money
}

func (LoanRefinanced) EventType() string { return TypeLoanRefinanced }

func (e LoanRefinanced) Event() *types.Event {
	attrs := e.attrs()
	attrs["oldRateBps"] = formatUint(e.OldRateBps)
	attrs["newRateBps"] = formatUint(e.NewRateBps)
	attrs["fee"] = e.Fee.String()
	return &types.Event{Type: TypeLoanRefinanced, Attributes: attrs}
}

type RateAdjusted struct {
	LoanRef
	OldRateBps  uint64
	NewRateBps  uint64
	BaseRateBps uint64
	Reason      string
}

func (RateAdjusted) EventType() string { return TypeRateAdjusted }

func (e RateAdjusted) Event() *types.Event {
	attrs := e.attrs()
	attrs["oldRateBps"] = formatUint(e.OldRateBps)
	attrs["newRateBps"] = formatUint(e.NewRateBps)
	attrs["baseRateBps"] = formatUint(e.BaseRateBps)
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeRateAdjusted, Attributes: attrs}
}

type RiskUpdated struct {
	LoanRef
	OldRisk    uint64
	NewRisk    uint64
	NewRateBps uint64
}

func (RiskUpdated) EventType() string { return TypeRiskUpdated }

func (e RiskUpdated) Event() *types.Event {
	attrs := e.attrs()
	attrs["oldRisk"] = formatUint(e.OldRisk)
	attrs["newRisk"] = formatUint(e.NewRisk)
	attrs["newRateBps"] = formatUint(e.NewRateBps)
	return &types.Event{Type: TypeRiskUpdated, Attributes: attrs}
}

type InterestTypeChanged struct {
	LoanRef
	From      string
	To        string
	Frequency string
	Settled   types.Money
}

func (InterestTypeChanged) EventType() string { return TypeInterestTypeChanged }

func (e InterestTypeChanged) Event() *types.Event {
	attrs := e.attrs()
	attrs["from"] = e.From
	attrs["to"] = e.To
	if e.Frequency != "" {
		attrs["frequency"] = e.Frequency
	}
	attrs["balance"] = e.Settled.String()
	return &types.Event{Type: TypeInterestTypeChanged, Attributes: attrs}
}

type PaymentStructureChanged struct {
	LoanRef
	Structure      string
	Periods        uint64
	PeriodBlocks   uint64
	NextPaymentDue uint64
	MinimumPayment types.Money
}

func (PaymentStructureChanged) EventType() string { return TypePaymentStructureChanged }

func (e PaymentStructureChanged) Event() *types.Event {
	attrs := e.attrs()
	attrs["structure"] = e.Structure
	attrs["periods"] = formatUint(e.Periods)
	attrs["periodBlocks"] = formatUint(e.PeriodBlocks)
	attrs["nextPaymentDue"] = formatUint(e.NextPaymentDue)
	attrs["minimumPayment"] = e.MinimumPayment.String()
	return &types.Event{Type: TypePaymentStructureChanged, Attributes: attrs}
}

type LoanDefaulted struct {
	LoanRef
	Remaining types.Money
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	attrs := e.attrs()
	attrs["remaining"] = e.Remaining.String()
	return &types.Event{Type: TypeLoanDefaulted, Attributes: attrs}
}

type LoanLiquidated struct {
	LoanRef
	Lender     crypto.Address
	Collateral types.Money
	Remaining  types.Money
}

func (LoanLiquidated) EventType() string { return TypeLoanLiquidated }

func (e LoanLiquidated) Event() *types.Event {
	attrs := e.attrs()
	if !e.Lender.IsZero() {
		attrs["lender"] = e.Lender.String()
	}
	attrs["collateral"] = e.Collateral.String()
	attrs["remaining"] = e.Remaining.String()
	return &types.Event{Type: TypeLoanLiquidated, Attributes: attrs}
}
