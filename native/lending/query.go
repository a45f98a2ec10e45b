package lending

import (
	"lendledger/core/types"
	"lendledger/crypto"
)

// Queries never write. Values that depend on the current block are computed
// on an accrued copy of the stored loan.

// ExtensionInfo summarises the extension state of a loan.
type ExtensionInfo struct {
	ExtensionCount  uint64
	MaxExtensions   uint64
	Fee             types.Money
	ExtensionBlocks uint64
	DueDate         uint64
	CanExtend       bool
}

// PaymentInfo summarises the payment log and the current period.
type PaymentInfo struct {
	RemainingBalance     types.Money
	TotalPaid            types.Money
	PaymentCount         uint64
	LastPaymentBlock     uint64
	NextPaymentDue       uint64
	MinimumPaymentAmount types.Money
	CurrentPeriodPaid    types.Money
}

// LateFeeInfo describes the overdue state of a loan.
type LateFeeInfo struct {
	Overdue        bool
	OverdueSince   uint64
	DaysOverdue    uint64
	LateFeeRate    uint64
	MaxLateFeeRate uint64
	AppliedBps     uint64
	TotalLateFees  types.Money
}

// RefinanceInfo summarises the refinance state of a loan.
type RefinanceInfo struct {
	RefinanceCount   uint64
	MaxRefinances    uint64
	RefinanceFeeRate uint64
	Fee              types.Money
	CanRefinance     bool
}

// CompoundInfo describes the accrual regime of a loan.
type CompoundInfo struct {
	InterestType            InterestType
	Frequency               CompoundFrequency
	PeriodBlocks            uint64
	PeriodRateBps           uint64
	LastInterestUpdate      uint64
	TotalCompoundedInterest types.Money
	InterestOutstanding     types.Money
}

// PaymentStructureInfo describes the repayment schedule of a loan.
type PaymentStructureInfo struct {
	Structure               PaymentStructure
	InterestOnlyPeriods     uint64
	InterestOnlyPeriodsUsed uint64
	PaymentPeriodBlocks     uint64
	NextPaymentDue          uint64
	MinimumPaymentAmount    types.Money
}

// GetLoan returns the stored loan record.
func (e *Engine) GetLoan(id uint64) (*Loan, error) {
	l, err := e.reader()
	if err != nil {
		return nil, err
	}
	return l.loan(id)
}

// GetLoans returns up to limit stored loans starting at id from.
func (e *Engine) GetLoans(from, limit uint64) ([]*Loan, error) {
	l, err := e.reader()
	if err != nil {
		return nil, err
	}
	total, err := l.totalLoans()
	if err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	var out []*Loan
	for id := from; id <= total && (limit == 0 || uint64(len(out)) < limit); id++ {
		loan, err := l.loan(id)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, nil
}

// GetUserProfile returns the profile of addr, or the default one when addr
// has never interacted.
func (e *Engine) GetUserProfile(addr crypto.Address) (*UserProfile, error) {
	l, err := e.reader()
	if err != nil {
		return nil, err
	}
	return l.profile(addr)
}

func (e *Engine) GetTotalLoans() (uint64, error) {
	l, err := e.reader()
	if err != nil {
		return 0, err
	}
	return l.totalLoans()
}

func (e *Engine) GetTotalLiquidity() (types.Money, error) {
	l, err := e.reader()
	if err != nil {
		return types.Money{}, err
	}
	return l.totalLiquidity()
}

func (e *Engine) GetProtocolFees() (types.Money, error) {
	l, err := e.reader()
	if err != nil {
		return types.Money{}, err
	}
	return l.protocolFees()
}

func (e *Engine) GetOwner() (crypto.Address, error) {
	l, err := e.reader()
	if err != nil {
		return crypto.Address{}, err
	}
	return l.owner()
}

// project loads the loan and accrues a copy of it to now.
func (e *Engine) project(id, now uint64) (*Loan, error) {
	stored, err := e.GetLoan(id)
	if err != nil {
		return nil, err
	}
	loan := stored.Clone()
	e.params.accrue(loan, now)
	return loan, nil
}

// GetEarlyRepaymentDiscount returns the discount ratio and amount a full
// repayment at now would receive.
func (e *Engine) GetEarlyRepaymentDiscount(id, now uint64) (uint64, types.Money, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return 0, types.Money{}, err
	}
	if loan.Status != StatusActive {
		return 0, types.Money{}, nil
	}
	bps := EarlyRepaymentDiscountBps(remainingTerm(loan, now), loan.Duration, e.params.EarlyRepaymentDiscountCapBps)
	_, discount := e.params.fullRepayment(loan, now)
	return bps, discount, nil
}

// CalculateFullRepayment returns the exact value RepayLoan expects at now.
func (e *Engine) CalculateFullRepayment(id, now uint64) (types.Money, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return types.Money{}, err
	}
	if err := requireActive(loan); err != nil {
		return types.Money{}, err
	}
	total, _ := e.params.fullRepayment(loan, now)
	return total, nil
}

func (e *Engine) CalculateExtensionFee(id uint64) (types.Money, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return types.Money{}, err
	}
	return ExtensionFee(loan.Amount, loan.ExtensionFeeRate), nil
}

// CanExtendLoan mirrors the guards of ExtendLoan other than authorization.
func (e *Engine) CanExtendLoan(id, now uint64) (bool, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return false, err
	}
	return e.canExtend(loan, now), nil
}

func (e *Engine) canExtend(loan *Loan, now uint64) bool {
	if loan.Status != StatusActive || loan.ExtensionCount >= loan.MaxExtensions {
		return false
	}
	return now <= loan.DueDate || now-loan.DueDate <= e.params.GracePeriodBlocks
}

func (e *Engine) GetLoanExtensionInfo(id, now uint64) (ExtensionInfo, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return ExtensionInfo{}, err
	}
	return ExtensionInfo{
		ExtensionCount:  loan.ExtensionCount,
		MaxExtensions:   loan.MaxExtensions,
		Fee:             ExtensionFee(loan.Amount, loan.ExtensionFeeRate),
		ExtensionBlocks: e.params.ExtensionPeriodBlocks,
		DueDate:         loan.DueDate,
		CanExtend:       e.canExtend(loan, now),
	}, nil
}

func (e *Engine) GetLoanPaymentInfo(id, now uint64) (PaymentInfo, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return PaymentInfo{}, err
	}
	info := PaymentInfo{
		RemainingBalance:     loan.RemainingBalance,
		TotalPaid:            loan.TotalPaid,
		PaymentCount:         uint64(len(loan.Payments)),
		NextPaymentDue:       loan.NextPaymentDue,
		MinimumPaymentAmount: loan.MinimumPaymentAmount,
		CurrentPeriodPaid:    loan.CurrentPeriodPaid,
	}
	if n := len(loan.Payments); n > 0 {
		info.LastPaymentBlock = loan.Payments[n-1].Block
	}
	return info, nil
}

// IsLoanOverdue reports whether an active loan is past its due date at now.
func (e *Engine) IsLoanOverdue(id, now uint64) (bool, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return false, err
	}
	return loan.Status == StatusActive && now > loan.DueDate, nil
}

func (e *Engine) GetLateFeeInfo(id, now uint64) (LateFeeInfo, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return LateFeeInfo{}, err
	}
	info := LateFeeInfo{
		Overdue:        loan.Status == StatusActive && now > loan.DueDate,
		OverdueSince:   loan.OverdueSince,
		LateFeeRate:    loan.LateFeeRate,
		MaxLateFeeRate: loan.MaxLateFeeRate,
		AppliedBps:     loan.LateFeeBpsApplied,
		TotalLateFees:  loan.TotalLateFees,
	}
	if info.Overdue && loan.OverdueSince > 0 {
		info.DaysOverdue = (now - loan.OverdueSince) / BlocksPerDay
	}
	return info, nil
}

// CalculateCurrentLateFees returns the cumulative late fees charged by now.
func (e *Engine) CalculateCurrentLateFees(id, now uint64) (types.Money, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return types.Money{}, err
	}
	return loan.TotalLateFees, nil
}

func (e *Engine) CalculateRefinanceFee(id, now uint64) (types.Money, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return types.Money{}, err
	}
	return RefinanceFee(loan.RemainingBalance, loan.RefinanceFeeRate), nil
}

func (e *Engine) GetLoanRefinanceInfo(id, now uint64) (RefinanceInfo, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return RefinanceInfo{}, err
	}
	return RefinanceInfo{
		RefinanceCount:   loan.RefinanceCount,
		MaxRefinances:    loan.MaxRefinances,
		RefinanceFeeRate: loan.RefinanceFeeRate,
		Fee:              RefinanceFee(loan.RemainingBalance, loan.RefinanceFeeRate),
		CanRefinance:     loan.Status == StatusActive && loan.RefinanceCount < loan.MaxRefinances,
	}, nil
}

func (e *Engine) GetRefinanceHistory(id uint64) ([]RefinanceRecord, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.RefinanceHistory, nil
}

// CalculateAccruedInterest returns the interest outstanding at now, including
// compound steps not yet written to storage.
func (e *Engine) CalculateAccruedInterest(id, now uint64) (types.Money, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return types.Money{}, err
	}
	return loan.InterestOutstanding, nil
}

func (e *Engine) GetCompoundInterestInfo(id, now uint64) (CompoundInfo, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return CompoundInfo{}, err
	}
	info := CompoundInfo{
		InterestType:            loan.InterestType,
		Frequency:               loan.CompoundFrequency,
		PeriodBlocks:            loan.CompoundPeriodBlocks,
		LastInterestUpdate:      loan.LastInterestUpdate,
		TotalCompoundedInterest: loan.TotalCompoundedInterest,
		InterestOutstanding:     loan.InterestOutstanding,
	}
	if loan.CompoundPeriodBlocks > 0 {
		info.PeriodRateBps = PeriodRateBps(loan.InterestRate, loan.CompoundPeriodBlocks, e.params.YearBlocks)
	}
	return info, nil
}

func (e *Engine) GetPaymentStructureInfo(id, now uint64) (PaymentStructureInfo, error) {
	loan, err := e.project(id, now)
	if err != nil {
		return PaymentStructureInfo{}, err
	}
	return PaymentStructureInfo{
		Structure:               loan.PaymentStructure,
		InterestOnlyPeriods:     loan.InterestOnlyPeriods,
		InterestOnlyPeriodsUsed: loan.InterestOnlyPeriodsUsed,
		PaymentPeriodBlocks:     loan.PaymentPeriodBlocks,
		NextPaymentDue:          loan.NextPaymentDue,
		MinimumPaymentAmount:    loan.MinimumPaymentAmount,
	}, nil
}
