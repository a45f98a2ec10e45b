package lending

import (
	"lendledger/core/events"
	"lendledger/core/types"
)

// CreateLoan records a loan request from the caller and returns its id.
func (e *Engine) CreateLoan(h Host, amount types.Money, rateBps, duration uint64, collateral types.Money) (uint64, error) {
	var id uint64
	err := e.execute(h, "create_loan", func(tx *txn) error {
		if amount.IsZero() {
			return ErrInvalidAmount
		}
		if rateBps == 0 || rateBps > e.params.MaxRateBps {
			return ErrInvalidInterestRate
		}
		if duration == 0 || duration > e.params.MaxDurationBlocks {
			return ErrInvalidDuration
		}
		borrower, err := tx.profile(tx.caller)
		if err != nil {
			return err
		}
		if borrower.IsBlacklisted {
			return ErrUserBlacklisted
		}
		required := mulDiv(amount, e.params.MinCollateralRatioBps, basisPointsDivisor)
		if collateral.Cmp(required) < 0 {
			return ErrInsufficientCollateral
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}

		id, err = tx.nextLoanID()
		if err != nil {
			return err
		}
		loan := e.newLoan(id, tx, amount, rateBps, duration, collateral)
		borrower.addActiveLoan(id)
		if err := tx.putProfile(borrower); err != nil {
			return err
		}
		if err := tx.putLoan(loan); err != nil {
			return err
		}
		tx.emit(events.LoanCreated{
			LoanRef:    tx.ref(id),
			Amount:     amount,
			Collateral: collateral,
			RateBps:    rateBps,
			Duration:   duration,
			DueDate:    loan.DueDate,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) newLoan(id uint64, tx *txn, amount types.Money, rateBps, duration uint64, collateral types.Money) *Loan {
	p := e.params
	loan := &Loan{
		ID:                      id,
		Borrower:                tx.caller,
		Amount:                  amount,
		Collateral:              collateral,
		InterestRate:            rateBps,
		BaseInterestRate:        rateBps,
		RiskMultiplier:          defaultRiskMultiplier,
		RateType:                RateFixed,
		InterestType:            InterestSimple,
		CompoundFrequency:       CompoundMonthly,
		CompoundPeriodBlocks:    CompoundMonthly.Blocks(),
		PaymentStructure:        PrincipalAndInterest,
		PaymentPeriodBlocks:     p.PaymentPeriodBlocks,
		Status:                  StatusPending,
		CreatedAt:               tx.block,
		Duration:                duration,
		DueDate:                 tx.block + duration,
		PrincipalOutstanding:    amount,
		InterestUpdateFrequency: p.InterestUpdateFrequency,
		MaxExtensions:           p.MaxExtensions,
		ExtensionFeeRate:        p.ExtensionFeeRateBps,
		MaxRefinances:           p.MaxRefinances,
		RefinanceFeeRate:        p.RefinanceFeeRateBps,
		LateFeeRate:             p.LateFeeRateBps,
		MaxLateFeeRate:          p.MaxLateFeeRateBps,
	}
	loan.refreshBalance()
	return loan
}

// FundLoan makes the caller the lender of a pending loan. The transferred
// value must equal the principal and is forwarded to the borrower.
func (e *Engine) FundLoan(h Host, id uint64) error {
	return e.execute(h, "fund_loan", func(tx *txn) error {
		loan, err := tx.loan(id)
		if err != nil {
			return err
		}
		if loan.HasLender() || loan.Borrower == tx.caller {
			return ErrUnauthorized
		}
		if loan.Status != StatusPending {
			return ErrLoanNotActive
		}
		lender, err := tx.profile(tx.caller)
		if err != nil {
			return err
		}
		if lender.IsBlacklisted {
			return ErrUserBlacklisted
		}
		if err := tx.requireValue(loan.Amount); err != nil {
			return err
		}

		loan.Lender = tx.caller
		loan.Status = StatusActive
		loan.FundedAt = tx.block
		loan.LastInterestUpdate = tx.block
		loan.NextPaymentDue = tx.block + loan.PaymentPeriodBlocks
		bookInterest(loan, SimpleInterest(loan.Amount, loan.InterestRate))
		e.params.refreshMinimumPayment(loan, tx.block)

		liquidity, err := tx.totalLiquidity()
		if err != nil {
			return err
		}
		if err := tx.setTotalLiquidity(liquidity.Add(loan.Amount)); err != nil {
			return err
		}
		lender.TotalLent = lender.TotalLent.Add(loan.Amount)
		lender.addActiveLoan(id)
		if err := tx.putProfile(lender); err != nil {
			return err
		}
		borrower, err := tx.profile(loan.Borrower)
		if err != nil {
			return err
		}
		borrower.TotalBorrowed = borrower.TotalBorrowed.Add(loan.Amount)
		if err := tx.putProfile(borrower); err != nil {
			return err
		}
		if err := tx.putLoan(loan); err != nil {
			return err
		}
		tx.transfer(loan.Borrower, loan.Amount)
		tx.emit(events.LoanFunded{LoanRef: tx.ref(id), Borrower: loan.Borrower, Amount: loan.Amount})
		return nil
	})
}

// RepayLoan settles the loan in full. The transferred value must equal the
// full repayment amount at the current block.
func (e *Engine) RepayLoan(h Host, id uint64) error {
	return e.execute(h, "repay_loan", func(tx *txn) error {
		loan, err := tx.requireBorrower(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)
		total, discount := e.params.fullRepayment(loan, tx.block)
		if err := tx.requireValue(total); err != nil {
			return err
		}

		loan.InterestOutstanding = loan.InterestOutstanding.SaturatingSub(discount)
		loan.refreshBalance()
		loan.TotalDiscounts = loan.TotalDiscounts.Add(discount)
		fees, interest, principal := waterfall(loan, total)
		fee, err := tx.collectProtocolFee(loan, total)
		if err != nil {
			return err
		}
		loan.TotalPaid = loan.TotalPaid.Add(total)
		loan.CurrentPeriodPaid = types.Money{}
		loan.MinimumPaymentAmount = types.Money{}
		loan.Payments = append(loan.Payments, Payment{
			Block:            tx.block,
			Amount:           total,
			Kind:             PaymentFull,
			FeePortion:       fees,
			InterestPortion:  interest,
			PrincipalPortion: principal,
		})
		if !loan.RemainingBalance.IsZero() {
			return ErrInsufficientBalance
		}
		if err := tx.closeLoan(loan, StatusRepaid); err != nil {
			return err
		}
		payout, _ := total.Sub(fee)
		tx.transfer(loan.Lender, payout)
		tx.emit(events.LoanRepaid{
			LoanRef:     tx.ref(id),
			Lender:      loan.Lender,
			Amount:      total,
			ProtocolFee: fee,
			Discount:    discount,
		})
		return nil
	})
}

// collectProtocolFee withholds the protocol share of a repayment.
func (tx *txn) collectProtocolFee(loan *Loan, value types.Money) (types.Money, error) {
	fee := ProtocolFee(value, tx.params.ProtocolFeeBps)
	if fee.IsZero() {
		return fee, nil
	}
	collected, err := tx.protocolFees()
	if err != nil {
		return types.Money{}, err
	}
	if err := tx.setProtocolFees(collected.Add(fee)); err != nil {
		return types.Money{}, err
	}
	loan.TotalProtocolFees = loan.TotalProtocolFees.Add(fee)
	return fee, nil
}

// PartialRepay applies amount through the payment waterfall. A payment that
// clears the balance settles the loan.
func (e *Engine) PartialRepay(h Host, id uint64, amount types.Money) error {
	return e.execute(h, "partial_repay", func(tx *txn) error {
		loan, err := tx.requireBorrower(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)
		if amount.IsZero() || amount.Cmp(loan.RemainingBalance) > 0 {
			return ErrInvalidAmount
		}
		if err := tx.requireValue(amount); err != nil {
			return err
		}

		fees, interest, principal := waterfall(loan, amount)
		fee, err := tx.collectProtocolFee(loan, amount)
		if err != nil {
			return err
		}
		loan.TotalPaid = loan.TotalPaid.Add(amount)

		kind := PaymentPartial
		loan.CurrentPeriodPaid = loan.CurrentPeriodPaid.Add(amount)
		if loan.CurrentPeriodPaid.Cmp(loan.MinimumPaymentAmount) >= 0 {
			kind = PaymentScheduled
			loan.CurrentPeriodPaid = types.Money{}
			loan.NextPaymentDue += loan.PaymentPeriodBlocks
			if loan.PaymentStructure == InterestOnly {
				loan.InterestOnlyPeriodsUsed++
				if loan.InterestOnlyPeriodsUsed >= loan.InterestOnlyPeriods {
					loan.InterestOnlyPeriodsUsed = loan.InterestOnlyPeriods
					loan.PaymentStructure = PrincipalAndInterest
				}
			}
		}
		settled := loan.RemainingBalance.IsZero()
		if settled {
			kind = PaymentFull
		}
		loan.Payments = append(loan.Payments, Payment{
			Block:            tx.block,
			Amount:           amount,
			Kind:             kind,
			FeePortion:       fees,
			InterestPortion:  interest,
			PrincipalPortion: principal,
		})
		e.params.refreshMinimumPayment(loan, tx.block)

		if settled {
			if err := tx.closeLoan(loan, StatusRepaid); err != nil {
				return err
			}
		} else if err := tx.putLoan(loan); err != nil {
			return err
		}
		payout, _ := amount.Sub(fee)
		tx.transfer(loan.Lender, payout)
		tx.emit(events.LoanPartiallyRepaid{
			LoanRef:     tx.ref(id),
			Amount:      amount,
			Fees:        fees,
			Interest:    interest,
			Principal:   principal,
			Remaining:   loan.RemainingBalance,
			ProtocolFee: fee,
		})
		if settled {
			tx.emit(events.LoanRepaid{LoanRef: tx.ref(id), Lender: loan.Lender, Amount: amount, ProtocolFee: fee})
		}
		return nil
	})
}

// ExtendLoan pushes the due date out by one extension period. The transferred
// value must equal the extension fee, which goes to the lender.
func (e *Engine) ExtendLoan(h Host, id uint64) error {
	return e.execute(h, "extend_loan", func(tx *txn) error {
		loan, err := tx.requireBorrower(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		if loan.ExtensionCount >= loan.MaxExtensions {
			return ErrMaxExtensionsReached
		}
		if tx.block > loan.DueDate && tx.block-loan.DueDate > e.params.GracePeriodBlocks {
			return ErrLoanExpired
		}
		e.params.accrue(loan, tx.block)
		fee := ExtensionFee(loan.Amount, loan.ExtensionFeeRate)
		if err := tx.requireValue(fee); err != nil {
			return err
		}

		loan.Duration += e.params.ExtensionPeriodBlocks
		loan.DueDate += e.params.ExtensionPeriodBlocks
		loan.ExtensionCount++
		loan.TotalExtensionFees = loan.TotalExtensionFees.Add(fee)
		cureOverdue(loan, tx.block)
		e.params.refreshMinimumPayment(loan, tx.block)
		if err := tx.putLoan(loan); err != nil {
			return err
		}
		tx.transfer(loan.Lender, fee)
		tx.emit(events.LoanExtended{
			LoanRef:        tx.ref(id),
			Fee:            fee,
			NewDueDate:     loan.DueDate,
			ExtensionCount: loan.ExtensionCount,
		})
		return nil
	})
}

// RefinanceLoan lets the lender reset the base rate. The refinance fee is
// added to the outstanding fees of the loan.
func (e *Engine) RefinanceLoan(h Host, id uint64, newBaseBps uint64) error {
	return e.execute(h, "refinance_loan", func(tx *txn) error {
		loan, err := tx.requireLender(id)
		if err != nil {
			return err
		}
		if err := requireActive(loan); err != nil {
			return err
		}
		if loan.RefinanceCount >= loan.MaxRefinances {
			return ErrMaxRefinancesReached
		}
		if newBaseBps == 0 || newBaseBps > e.params.MaxRateBps {
			return ErrInvalidInterestRate
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)

		fee := RefinanceFee(loan.RemainingBalance, loan.RefinanceFeeRate)
		loan.FeesOutstanding = loan.FeesOutstanding.Add(fee)
		loan.TotalRefinanceFees = loan.TotalRefinanceFees.Add(fee)

		oldRate := loan.InterestRate
		loan.BaseInterestRate = newBaseBps
		setRate(loan, e.effectiveRate(loan), tx.block)
		loan.RefinanceHistory = append(loan.RefinanceHistory, RefinanceRecord{
			OldRate: oldRate,
			NewRate: loan.InterestRate,
			Fee:     fee,
			Block:   tx.block,
		})
		loan.RefinanceCount++
		loan.LastRateUpdate = tx.block
		e.params.refreshMinimumPayment(loan, tx.block)
		if err := tx.putLoan(loan); err != nil {
			return err
		}
		tx.emit(events.LoanRefinanced{
			LoanRef:    tx.ref(id),
			OldRateBps: oldRate,
			NewRateBps: loan.InterestRate,
			Fee:        fee,
		})
		return nil
	})
}

// effectiveRate derives the rate implied by the loan's base and risk.
func (e *Engine) effectiveRate(loan *Loan) uint64 {
	if loan.RateType == RateVariable {
		return EffectiveRate(loan.BaseInterestRate, loan.RiskMultiplier, e.params.MaxRateBps)
	}
	return loan.BaseInterestRate
}
