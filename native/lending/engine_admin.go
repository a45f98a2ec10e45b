package lending

import (
	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
)

// InitOwner records the caller as the administrative owner. It succeeds only
// once.
func (e *Engine) InitOwner(h Host) error {
	return e.execute(h, "init_owner", func(tx *txn) error {
		owner, err := tx.owner()
		if err != nil {
			return err
		}
		if !owner.IsZero() {
			return ErrOwnerAlreadySet
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		return tx.setOwner(tx.caller)
	})
}

// SetBlacklisted flags or clears addr. Blacklisted principals cannot create or
// fund loans.
func (e *Engine) SetBlacklisted(h Host, addr crypto.Address, blacklisted bool) error {
	return e.execute(h, "set_blacklisted", func(tx *txn) error {
		if err := tx.requireOwner(); err != nil {
			return err
		}
		profile, err := tx.profile(addr)
		if err != nil {
			return err
		}
		profile.IsBlacklisted = blacklisted
		return tx.putProfile(profile)
	})
}

// SetCreditScore overrides the credit score of addr.
func (e *Engine) SetCreditScore(h Host, addr crypto.Address, score uint64) error {
	return e.execute(h, "set_credit_score", func(tx *txn) error {
		if err := tx.requireOwner(); err != nil {
			return err
		}
		if score < minCreditScore || score > maxCreditScore {
			return ErrInvalidAmount
		}
		profile, err := tx.profile(addr)
		if err != nil {
			return err
		}
		profile.CreditScore = score
		return tx.putProfile(profile)
	})
}

// ConfigureLateFees sets the per day late fee rate and its cap. Only the
// borrower may do so and only while the loan is pending; the terms are fixed
// once the loan is funded.
func (e *Engine) ConfigureLateFees(h Host, id uint64, rateBps, maxBps uint64) error {
	return e.execute(h, "configure_late_fees", func(tx *txn) error {
		loan, err := tx.requireBorrower(id)
		if err != nil {
			return err
		}
		if loan.Status != StatusPending {
			return ErrLoanNotActive
		}
		if maxBps > basisPointsDivisor || rateBps > maxBps {
			return ErrInvalidInterestRate
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		loan.LateFeeRate = rateBps
		loan.MaxLateFeeRate = maxBps
		return tx.putLoan(loan)
	})
}

// Accrue brings an active loan up to the current block. Anyone may call it.
func (e *Engine) Accrue(h Host, id uint64) error {
	return e.execute(h, "accrue", func(tx *txn) error {
		loan, err := tx.loan(id)
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
		return tx.putLoan(loan)
	})
}

// MarkDefault moves an active loan to Defaulted. The owner may do so at any
// time; anyone else only once the loan is past grace or at its late fee cap.
func (e *Engine) MarkDefault(h Host, id uint64) error {
	return e.execute(h, "mark_default", func(tx *txn) error {
		loan, err := tx.loan(id)
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
		owner, err := tx.isOwner()
		if err != nil {
			return err
		}
		if !owner && !e.params.defaultEligible(loan, tx.block) {
			return ErrUnauthorized
		}
		if err := tx.closeLoan(loan, StatusDefaulted); err != nil {
			return err
		}
		tx.emit(events.LoanDefaulted{LoanRef: tx.ref(id), Remaining: loan.RemainingBalance})
		return nil
	})
}

// Liquidate seizes the collateral of an active or defaulted loan. The lender
// of a defaulted loan may always liquidate it.
func (e *Engine) Liquidate(h Host, id uint64) error {
	return e.execute(h, "liquidate", func(tx *txn) error {
		loan, err := tx.loan(id)
		if err != nil {
			return err
		}
		switch loan.Status {
		case StatusLiquidated:
			return ErrCollateralSeized
		case StatusRepaid:
			return ErrLoanAlreadyRepaid
		case StatusPending:
			return ErrLoanNotActive
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		e.params.accrue(loan, tx.block)
		owner, err := tx.isOwner()
		if err != nil {
			return err
		}
		lender := loan.HasLender() && loan.Lender == tx.caller
		allowed := owner ||
			(loan.Status == StatusDefaulted && lender) ||
			(loan.Status == StatusActive && e.params.defaultEligible(loan, tx.block))
		if !allowed {
			return ErrUnauthorized
		}
		if loan.Status == StatusDefaulted {
			// The loan already left the active sets; only the score moves.
			borrower, err := tx.profile(loan.Borrower)
			if err != nil {
				return err
			}
			adjustCreditScore(borrower, StatusLiquidated)
			if err := tx.putProfile(borrower); err != nil {
				return err
			}
			loan.Status = StatusLiquidated
			if err := tx.putLoan(loan); err != nil {
				return err
			}
		} else if err := tx.closeLoan(loan, StatusLiquidated); err != nil {
			return err
		}
		tx.emit(events.LoanLiquidated{
			LoanRef:    tx.ref(id),
			Lender:     loan.Lender,
			Collateral: loan.Collateral,
			Remaining:  loan.RemainingBalance,
		})
		return nil
	})
}

// WithdrawProtocolFees pays collected protocol fees out to to.
func (e *Engine) WithdrawProtocolFees(h Host, to crypto.Address, amount types.Money) error {
	return e.execute(h, "withdraw_protocol_fees", func(tx *txn) error {
		if err := tx.requireOwner(); err != nil {
			return err
		}
		if amount.IsZero() || to.IsZero() {
			return ErrInvalidAmount
		}
		if err := tx.requireNoValue(); err != nil {
			return err
		}
		collected, err := tx.protocolFees()
		if err != nil {
			return err
		}
		if err := subtract(&collected, amount); err != nil {
			return err
		}
		if err := tx.setProtocolFees(collected); err != nil {
			return err
		}
		tx.transfer(to, amount)
		return nil
	})
}
