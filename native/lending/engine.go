package lending

import (
	"errors"
	"fmt"
	"log/slog"

	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
	nativecommon "lendledger/native/common"
	"lendledger/storage"
)

const moduleName = "lending"

const (
	minCreditScore        uint64 = 300
	maxCreditScore        uint64 = 850
	repaidCreditBonus     uint64 = 10
	defaultCreditPenalty  uint64 = 100
	liquidatedCreditHit   uint64 = 150
	defaultRiskMultiplier uint64 = 1_000
)

// Engine orchestrates the loan state machine. It holds no per-call state;
// every mutating operation receives its Host explicitly.
type Engine struct {
	db     storage.Database
	params Params
	pauses nativecommon.PauseView
	logger *slog.Logger
}

// NewEngine constructs an engine with the supplied parameters. Storage must be
// wired with SetStorage before use.
func NewEngine(params Params) *Engine {
	return &Engine{params: params, logger: slog.Default()}
}

// SetStorage wires the engine to the persistence layer used for queries and
// for hosts that do not scope storage themselves.
func (e *Engine) SetStorage(db storage.Database) {
	if e == nil {
		return
	}
	e.db = db
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger replaces the logger used for transition diagnostics.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Params returns a copy of the engine configuration.
func (e *Engine) Params() Params {
	if e == nil {
		return Params{}
	}
	return e.params
}

type pendingTransfer struct {
	to     crypto.Address
	amount types.Money
}

// txn carries the state of one mutating call. Writes land in a journal and
// reach storage only on commit; transfers and events are queued until then.
type txn struct {
	*ledger
	journal   *storage.Journal
	caller    crypto.Address
	block     uint64
	value     types.Money
	transfers []pendingTransfer
	events    []events.Event
}

func (tx *txn) transfer(to crypto.Address, amount types.Money) {
	if amount.IsZero() {
		return
	}
	tx.transfers = append(tx.transfers, pendingTransfer{to: to, amount: amount})
}

func (tx *txn) emit(ev events.Event) { tx.events = append(tx.events, ev) }

func (tx *txn) ref(id uint64) events.LoanRef {
	return events.LoanRef{LoanID: id, Actor: tx.caller, Block: tx.block}
}

// requireNoValue rejects value attached to calls that do not accept funds.
func (tx *txn) requireNoValue() error {
	if !tx.value.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// requireValue enforces an exact transferred value.
func (tx *txn) requireValue(want types.Money) error {
	if tx.value.Cmp(want) != 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) backing(h Host) storage.Database {
	if sh, ok := h.(StorageHost); ok {
		if db := sh.Storage(); db != nil {
			return db
		}
	}
	return e.db
}

// execute runs fn as one transaction: read, validate, accrue, mutate, commit,
// transfer, emit. A failed transfer reverts the committed writes.
func (e *Engine) execute(h Host, op string, fn func(tx *txn) error) error {
	if e == nil {
		return errNilState
	}
	if h == nil {
		return errNilHost
	}
	db := e.backing(h)
	if db == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	journal := storage.NewJournal(db)
	tx := &txn{
		ledger:  &ledger{db: journal, params: &e.params},
		journal: journal,
		caller:  h.Caller(),
		block:   h.BlockNumber(),
		value:   h.TransferredValue(),
	}
	if err := fn(tx); err != nil {
		journal.Discard()
		e.logger.Debug("lending transition rejected",
			slog.String("op", op),
			slog.String("caller", tx.caller.String()),
			slog.Uint64("block", tx.block),
			slog.String("error", err.Error()))
		return err
	}
	undo, err := journal.Commit()
	if err != nil {
		return fmt.Errorf("lending: commit %s: %w", op, err)
	}
	for _, t := range tx.transfers {
		if err := h.Transfer(t.to, t.amount); err != nil {
			if rerr := undo.Revert(); rerr != nil {
				e.logger.Error("lending revert failed", slog.String("op", op), slog.String("error", rerr.Error()))
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	for _, ev := range tx.events {
		h.Emit(ev)
		switch ev.EventType() {
		case events.TypeLoanRepaid, events.TypeLoanDefaulted, events.TypeLoanLiquidated:
			e.logger.Info("loan closed",
				slog.String("op", op),
				slog.String("event", ev.EventType()),
				slog.Uint64("block", tx.block))
		}
	}
	return nil
}

// reader returns a read-only ledger over the default storage.
func (e *Engine) reader() (*ledger, error) {
	if e == nil || e.db == nil {
		return nil, errNilState
	}
	return &ledger{db: e.db, params: &e.params}, nil
}

// requireBorrower loads the loan and checks the caller is its borrower.
func (tx *txn) requireBorrower(id uint64) (*Loan, error) {
	loan, err := tx.loan(id)
	if err != nil {
		return nil, err
	}
	if loan.Borrower != tx.caller {
		return nil, ErrUnauthorized
	}
	return loan, nil
}

// requireLender loads the loan and checks the caller is its lender.
func (tx *txn) requireLender(id uint64) (*Loan, error) {
	loan, err := tx.loan(id)
	if err != nil {
		return nil, err
	}
	if !loan.HasLender() || loan.Lender != tx.caller {
		return nil, ErrUnauthorized
	}
	return loan, nil
}

// requireActive maps non-active statuses to their errors.
func requireActive(loan *Loan) error {
	switch loan.Status {
	case StatusActive:
		return nil
	case StatusRepaid:
		return ErrLoanAlreadyRepaid
	default:
		return ErrLoanNotActive
	}
}

func (tx *txn) isOwner() (bool, error) {
	owner, err := tx.owner()
	if err != nil {
		return false, err
	}
	return !owner.IsZero() && owner == tx.caller, nil
}

func (tx *txn) requireOwner() error {
	ok, err := tx.isOwner()
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// closeLoan moves an open loan into a terminal status, dropping it from the
// participants' active sets and from total liquidity when it was funded.
func (tx *txn) closeLoan(loan *Loan, status LoanStatus) error {
	wasActive := loan.Status == StatusActive
	loan.Status = status

	participants := []crypto.Address{loan.Borrower}
	if loan.HasLender() {
		participants = append(participants, loan.Lender)
	}
	for _, addr := range participants {
		profile, err := tx.profile(addr)
		if err != nil {
			return err
		}
		profile.removeActiveLoan(loan.ID)
		if addr == loan.Borrower {
			adjustCreditScore(profile, status)
		}
		if err := tx.putProfile(profile); err != nil {
			return err
		}
	}
	if wasActive {
		liquidity, err := tx.totalLiquidity()
		if err != nil {
			return err
		}
		liquidity, err = liquidity.Sub(loan.Amount)
		if err != nil {
			return ErrInsufficientBalance
		}
		if err := tx.setTotalLiquidity(liquidity); err != nil {
			return err
		}
	}
	return tx.putLoan(loan)
}

func adjustCreditScore(profile *UserProfile, status LoanStatus) {
	switch status {
	case StatusRepaid:
		profile.CreditScore += repaidCreditBonus
		if profile.CreditScore > maxCreditScore {
			profile.CreditScore = maxCreditScore
		}
	case StatusDefaulted:
		profile.CreditScore = lowerScore(profile.CreditScore, defaultCreditPenalty)
	case StatusLiquidated:
		profile.CreditScore = lowerScore(profile.CreditScore, liquidatedCreditHit)
	}
}

func lowerScore(score, by uint64) uint64 {
	if score < minCreditScore+by {
		return minCreditScore
	}
	return score - by
}

// subtract removes a settled amount from an outstanding bucket.
func subtract(bucket *types.Money, amount types.Money) error {
	next, err := bucket.Sub(amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	*bucket = next
	return nil
}

// IsLendingError reports whether err is one of the engine's sentinel errors.
func IsLendingError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidInterestRate, ErrInvalidDuration, ErrInsufficientCollateral,
		ErrInsufficientBalance, ErrLoanNotFound, ErrLoanNotActive, ErrLoanAlreadyRepaid,
		ErrLoanExpired, ErrCollateralSeized, ErrUserBlacklisted, ErrUnauthorized, ErrTransferFailed,
		ErrRateUpdateTooFrequent, ErrMaxExtensionsReached, ErrMaxRefinancesReached,
		ErrNotVariableRate, ErrOwnerAlreadySet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
