package lending

import "lendledger/core/types"

// accrue advances an active loan to block now. Order is fixed: compound
// steps, then late fees, then the periodic minimum. Calling it twice at the
// same block leaves the loan unchanged.
func (p *Params) accrue(loan *Loan, now uint64) {
	if loan.Status != StatusActive {
		return
	}
	p.accrueCompound(loan, now)
	accrueLateFees(loan, now)
	p.refreshMinimumPayment(loan, now)
}

func (p *Params) accrueCompound(loan *Loan, now uint64) {
	if loan.InterestType != InterestCompound || loan.CompoundPeriodBlocks == 0 || now <= loan.LastInterestUpdate {
		return
	}
	steps := (now - loan.LastInterestUpdate) / loan.CompoundPeriodBlocks
	if steps == 0 {
		return
	}
	balance := loan.PrincipalOutstanding.Add(loan.InterestOutstanding)
	rate := PeriodRateBps(loan.InterestRate, loan.CompoundPeriodBlocks, p.YearBlocks)
	interest := CompoundInterest(balance, rate, steps)

	loan.InterestOutstanding = loan.InterestOutstanding.Add(interest)
	loan.TotalInterestAccrued = loan.TotalInterestAccrued.Add(interest)
	loan.TotalCompoundedInterest = loan.TotalCompoundedInterest.Add(interest)
	loan.LastInterestUpdate += steps * loan.CompoundPeriodBlocks
	loan.refreshBalance()
}

func accrueLateFees(loan *Loan, now uint64) {
	if now <= loan.DueDate {
		return
	}
	if loan.OverdueSince == 0 {
		loan.OverdueSince = loan.DueDate
		loan.LateFeeEpisodeBaseBps = loan.LateFeeBpsApplied
	}
	days := (now - loan.OverdueSince) / BlocksPerDay
	target := LateFeeBps(loan.LateFeeEpisodeBaseBps, days, loan.LateFeeRate, loan.MaxLateFeeRate)
	if target <= loan.LateFeeBpsApplied {
		return
	}
	loan.LateFeeBpsApplied = target
	total := LateFeeAmount(loan.Amount, target)
	if total.Cmp(loan.TotalLateFees) <= 0 {
		return
	}
	delta, _ := total.Sub(loan.TotalLateFees)
	loan.FeesOutstanding = loan.FeesOutstanding.Add(delta)
	loan.TotalLateFees = total
	loan.refreshBalance()
}

// cureOverdue closes the current overdue episode once the due date has moved
// past now. Late fees already charged stay on the loan.
func cureOverdue(loan *Loan, now uint64) {
	if loan.OverdueSince == 0 || now > loan.DueDate {
		return
	}
	loan.OverdueSince = 0
	loan.LateFeeEpisodeBaseBps = loan.LateFeeBpsApplied
}

func (p *Params) refreshMinimumPayment(loan *Loan, now uint64) {
	loan.refreshBalance()
	period := loan.PaymentPeriodBlocks
	if period == 0 {
		period = p.PaymentPeriodBlocks
	}
	var minimum types.Money
	if loan.PaymentStructure == InterestOnly {
		minimum = InterestOnlyPayment(loan.PrincipalOutstanding, loan.InterestRate, period, p.YearBlocks)
	} else {
		minimum = AmortizedPayment(loan.PrincipalOutstanding, loan.InterestRate, period, p.YearBlocks, remainingPeriods(loan, now, period))
	}
	if minimum.IsZero() || minimum.Cmp(loan.RemainingBalance) > 0 {
		minimum = loan.RemainingBalance
	}
	loan.MinimumPaymentAmount = minimum
}

func remainingPeriods(loan *Loan, now, period uint64) uint64 {
	if period == 0 || loan.DueDate <= now {
		return 1
	}
	if n := (loan.DueDate - now) / period; n > 0 {
		return n
	}
	return 1
}

func remainingTerm(loan *Loan, now uint64) uint64 {
	if loan.DueDate <= now {
		return 0
	}
	return loan.DueDate - now
}

// unearnedInterest is the booked simple interest that belongs to the rest of
// the term at rate.
func unearnedInterest(loan *Loan, rate, now uint64) types.Money {
	if loan.InterestType != InterestSimple {
		return types.Money{}
	}
	return UnearnedSimpleInterest(loan.PrincipalOutstanding, rate, remainingTerm(loan, now), loan.Duration)
}

// setRate moves the effective rate. Simple loans re-price the unearned part of
// their booked interest; compound loans must have been accrued already.
func setRate(loan *Loan, rate, now uint64) {
	if loan.InterestType == InterestSimple {
		before := unearnedInterest(loan, loan.InterestRate, now)
		after := unearnedInterest(loan, rate, now)
		if after.Cmp(before) > 0 {
			delta, _ := after.Sub(before)
			bookInterest(loan, delta)
		} else {
			delta, _ := before.Sub(after)
			releaseInterest(loan, delta)
		}
	}
	loan.InterestRate = rate
	loan.refreshBalance()
}

func bookInterest(loan *Loan, amount types.Money) {
	loan.InterestOutstanding = loan.InterestOutstanding.Add(amount)
	loan.TotalInterestAccrued = loan.TotalInterestAccrued.Add(amount)
}

// releaseInterest drops up to amount of outstanding interest and returns what
// was released.
func releaseInterest(loan *Loan, amount types.Money) types.Money {
	released := amount.Min(loan.InterestOutstanding)
	loan.InterestOutstanding = loan.InterestOutstanding.SaturatingSub(released)
	loan.TotalInterestAccrued = loan.TotalInterestAccrued.SaturatingSub(released)
	return released
}

// fullRepayment returns what settles the loan at now and the early repayment
// discount included in it. The discount applies to outstanding interest only.
func (p *Params) fullRepayment(loan *Loan, now uint64) (types.Money, types.Money) {
	bps := EarlyRepaymentDiscountBps(remainingTerm(loan, now), loan.Duration, p.EarlyRepaymentDiscountCapBps)
	discount := mulDiv(loan.InterestOutstanding, bps, basisPointsDivisor)
	total := loan.RemainingBalance.SaturatingSub(discount)
	return total, discount
}

// defaultEligible reports whether anyone may default or liquidate the loan.
func (p *Params) defaultEligible(loan *Loan, now uint64) bool {
	if now > loan.DueDate && now-loan.DueDate > p.GracePeriodBlocks {
		return true
	}
	return loan.MaxLateFeeRate > 0 && loan.LateFeeBpsApplied >= loan.MaxLateFeeRate
}

// waterfall applies amount to fees, then interest, then principal.
func waterfall(loan *Loan, amount types.Money) (fees, interest, principal types.Money) {
	rest := amount
	fees = rest.Min(loan.FeesOutstanding)
	loan.FeesOutstanding = loan.FeesOutstanding.SaturatingSub(fees)
	rest = rest.SaturatingSub(fees)

	interest = rest.Min(loan.InterestOutstanding)
	loan.InterestOutstanding = loan.InterestOutstanding.SaturatingSub(interest)
	rest = rest.SaturatingSub(interest)

	principal = rest.Min(loan.PrincipalOutstanding)
	loan.PrincipalOutstanding = loan.PrincipalOutstanding.SaturatingSub(principal)
	loan.refreshBalance()
	return fees, interest, principal
}
