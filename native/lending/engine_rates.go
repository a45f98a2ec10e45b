package lending

import (
	"lendledger/core/events"
	"lendledger/core/types"
)

// rateChange runs the shared guards of lender driven rate changes and hands
// the accrued loan to apply.
func (e *Engine) rateChange(h Host, op string, id uint64, apply func(tx *txn, loan *Loan) error) error {
	return e.execute(h, op, func(tx *txn) error {
		loan, err := tx.requireLender(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)
		if rateLimited(loan, tx.block) {
			return ErrRateUpdateTooFrequent
		}
		if err := apply(tx, loan); err != nil {
			return err
		}
		e.params.refreshMinimumPayment(loan, tx.block)
		return tx.putLoan(loan)
	})
}

// rateLimited reports whether a rate change at now would come too soon after
// the previous one. The first change on a loan is never limited.
func rateLimited(loan *Loan, now uint64) bool {
	if len(loan.InterestRateAdjustments) == 0 && loan.RefinanceCount == 0 {
		return false
	}
	return now < loan.LastRateUpdate || now-loan.LastRateUpdate < loan.InterestUpdateFrequency
}

// reprice applies a new effective rate and logs the adjustment.
func (e *Engine) reprice(tx *txn, loan *Loan, reason AdjustmentReason, riskBefore uint64) uint64 {
	oldRate := loan.InterestRate
	setRate(loan, e.effectiveRate(loan), tx.block)
	loan.InterestRateAdjustments = append(loan.InterestRateAdjustments, RateAdjustment{
		OldRate:    oldRate,
		NewRate:    loan.InterestRate,
		Reason:     reason,
		Block:      tx.block,
		RiskBefore: riskBefore,
		RiskAfter:  loan.RiskMultiplier,
	})
	loan.LastRateUpdate = tx.block
	return oldRate
}

// ConvertToVariableRate switches the loan to a variable rate derived from
// newBaseBps and the current risk multiplier.
func (e *Engine) ConvertToVariableRate(h Host, id uint64, newBaseBps uint64) error {
	if newBaseBps == 0 || newBaseBps > e.params.MaxRateBps {
		return ErrInvalidInterestRate
	}
	return e.rateChange(h, "convert_to_variable_rate", id, func(tx *txn, loan *Loan) error {
		loan.RateType = RateVariable
		loan.BaseInterestRate = newBaseBps
		if loan.RiskMultiplier == 0 {
			loan.RiskMultiplier = defaultRiskMultiplier
		}
		oldRate := e.reprice(tx, loan, ReasonVariableConversion, loan.RiskMultiplier)
		tx.emit(events.RateAdjusted{
			LoanRef:     tx.ref(id),
			OldRateBps:  oldRate,
			NewRateBps:  loan.InterestRate,
			BaseRateBps: loan.BaseInterestRate,
			Reason:      ReasonVariableConversion.String(),
		})
		return nil
	})
}

// AdjustInterestRate moves the base rate of a variable loan.
func (e *Engine) AdjustInterestRate(h Host, id uint64, newBaseBps uint64, reason AdjustmentReason) error {
	if newBaseBps == 0 || newBaseBps > e.params.MaxRateBps {
		return ErrInvalidInterestRate
	}
	return e.rateChange(h, "adjust_interest_rate", id, func(tx *txn, loan *Loan) error {
		if loan.RateType != RateVariable {
			return ErrNotVariableRate
		}
		loan.BaseInterestRate = newBaseBps
		oldRate := e.reprice(tx, loan, reason, loan.RiskMultiplier)
		tx.emit(events.RateAdjusted{
			LoanRef:     tx.ref(id),
			OldRateBps:  oldRate,
			NewRateBps:  loan.InterestRate,
			BaseRateBps: loan.BaseInterestRate,
			Reason:      reason.String(),
		})
		return nil
	})
}

// UpdateRiskMultiplier sets the per mille risk multiplier of a variable loan.
func (e *Engine) UpdateRiskMultiplier(h Host, id uint64, riskMille uint64) error {
	if riskMille == 0 || riskMille > e.params.MaxRiskMultiplier {
		return ErrInvalidInterestRate
	}
	return e.rateChange(h, "update_risk_multiplier", id, func(tx *txn, loan *Loan) error {
		if loan.RateType != RateVariable {
			return ErrNotVariableRate
		}
		before := loan.RiskMultiplier
		loan.RiskMultiplier = riskMille
		e.reprice(tx, loan, ReasonRiskReassessment, before)
		tx.emit(events.RiskUpdated{
			LoanRef:    tx.ref(id),
			OldRisk:    before,
			NewRisk:    riskMille,
			NewRateBps: loan.InterestRate,
		})
		return nil
	})
}

// regimeChange runs the shared guards of interest type and payment structure
// changes.
func (e *Engine) regimeChange(h Host, op string, id uint64, apply func(tx *txn, loan *Loan) error) error {
	return e.execute(h, op, func(tx *txn) error {
		loan, err := tx.requireLender(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)
		if err := apply(tx, loan); err != nil {
			return err
		}
		e.params.refreshMinimumPayment(loan, tx.block)
		return tx.putLoan(loan)
	})
}

// ConvertToCompoundInterest moves the loan to compound accrual at freq.
// Simple interest booked for the rest of the term is released first; the
// interest earned so far stays on the balance.
func (e *Engine) ConvertToCompoundInterest(h Host, id uint64, freq CompoundFrequency) error {
	if !freq.Valid() {
		return ErrInvalidDuration
	}
	return e.regimeChange(h, "convert_to_compound_interest", id, func(tx *txn, loan *Loan) error {
		from := loan.InterestType
		if from == InterestSimple {
			releaseInterest(loan, unearnedInterest(loan, loan.InterestRate, tx.block))
			loan.InterestType = InterestCompound
			loan.LastInterestUpdate = tx.block
		}
		loan.CompoundFrequency = freq
		loan.CompoundPeriodBlocks = freq.Blocks()
		loan.refreshBalance()
		tx.emit(events.InterestTypeChanged{
			LoanRef:   tx.ref(id),
			From:      from.String(),
			To:        InterestCompound.String(),
			Frequency: freq.String(),
			Settled:   loan.RemainingBalance,
		})
		return nil
	})
}

// SwitchToSimpleInterest stops compounding. Interest for the rest of the term
// is booked at the current rate.
func (e *Engine) SwitchToSimpleInterest(h Host, id uint64) error {
	return e.regimeChange(h, "switch_to_simple_interest", id, func(tx *txn, loan *Loan) error {
		from := loan.InterestType
		if from == InterestCompound {
			loan.InterestType = InterestSimple
			bookInterest(loan, unearnedInterest(loan, loan.InterestRate, tx.block))
			loan.LastInterestUpdate = tx.block
		}
		loan.refreshBalance()
		tx.emit(events.InterestTypeChanged{
			LoanRef: tx.ref(id),
			From:    from.String(),
			To:      InterestSimple.String(),
			Settled: loan.RemainingBalance,
		})
		return nil
	})
}

// SetInterestOnlyPeriods puts the loan on an interest-only schedule of count
// periods of periodBlocks each.
func (e *Engine) SetInterestOnlyPeriods(h Host, id uint64, count, periodBlocks uint64) error {
	if count == 0 {
		return ErrInvalidAmount
	}
	if periodBlocks == 0 {
		return ErrInvalidDuration
	}
	return e.regimeChange(h, "set_interest_only_periods", id, func(tx *txn, loan *Loan) error {
		if count > loan.Duration/periodBlocks {
			return ErrInvalidDuration
		}
		loan.PaymentStructure = InterestOnly
		loan.InterestOnlyPeriods = count
		loan.InterestOnlyPeriodsUsed = 0
		loan.PaymentPeriodBlocks = periodBlocks
		loan.NextPaymentDue = tx.block + periodBlocks
		loan.CurrentPeriodPaid = types.Money{}
		e.params.refreshMinimumPayment(loan, tx.block)
		tx.emit(events.PaymentStructureChanged{
			LoanRef:        tx.ref(id),
			Structure:      loan.PaymentStructure.String(),
			Periods:        count,
			PeriodBlocks:   periodBlocks,
			NextPaymentDue: loan.NextPaymentDue,
			MinimumPayment: loan.MinimumPaymentAmount,
		})
		return nil
	})
}

// SwitchToPrincipalAndInterest ends an interest-only schedule early.
func (e *Engine) SwitchToPrincipalAndInterest(h Host, id uint64) error {
	return e.regimeChange(h, "switch_to_principal_and_interest", id, func(tx *txn, loan *Loan) error {
		loan.PaymentStructure = PrincipalAndInterest
		loan.InterestOnlyPeriodsUsed = loan.InterestOnlyPeriods
		loan.NextPaymentDue = tx.block + loan.PaymentPeriodBlocks
		e.params.refreshMinimumPayment(loan, tx.block)
		tx.emit(events.PaymentStructureChanged{
			LoanRef:        tx.ref(id),
			Structure:      loan.PaymentStructure.String(),
			Periods:        loan.InterestOnlyPeriods,
			PeriodBlocks:   loan.PaymentPeriodBlocks,
			NextPaymentDue: loan.NextPaymentDue,
			MinimumPayment: loan.MinimumPaymentAmount,
		})
		return nil
	})
}
