package host

import (
	"errors"
	"fmt"

	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/native/bank"
	"lendledger/storage"
)

var ErrTxClosed = errors.New("host: transaction already finished")

// Tx is the ambient state of one lending call. The attached value moves from
// the caller into the module account when the transaction begins; all writes
// including that escrow stay in a journal until Commit.
type Tx struct {
	journal *storage.Journal
	bank    *bank.Bank
	module  crypto.Address
	caller  crypto.Address
	block   uint64
	value   types.Money
	events  events.Recorder
	done    bool
}

// Begin opens a transaction over db for caller at block. value is escrowed
// from the caller's balance into module.
func Begin(db storage.Database, module, caller crypto.Address, block uint64, value types.Money) (*Tx, error) {
	journal := storage.NewJournal(db)
	tx := &Tx{
		journal: journal,
		bank:    bank.New(journal),
		module:  module,
		caller:  caller,
		block:   block,
		value:   value,
	}
	if err := tx.bank.Move(caller, module, value); err != nil {
		journal.Discard()
		return nil, fmt.Errorf("host: escrow value: %w", err)
	}
	return tx, nil
}

func (tx *Tx) Caller() crypto.Address        { return tx.caller }
func (tx *Tx) BlockNumber() uint64           { return tx.block }
func (tx *Tx) TransferredValue() types.Money { return tx.value }

// Storage exposes the transaction's journal to the engine.
func (tx *Tx) Storage() storage.Database { return tx.journal }

// Transfer pays amount out of the module account.
func (tx *Tx) Transfer(to crypto.Address, amount types.Money) error {
	if tx.done {
		return ErrTxClosed
	}
	return tx.bank.Move(tx.module, to, amount)
}

// Emit buffers ev until Commit.
func (tx *Tx) Emit(ev events.Event) { tx.events.Emit(ev) }

// Events returns the buffered events.
func (tx *Tx) Events() []events.Event { return tx.events.Events() }

// Commit writes the journal to the underlying store and forwards the buffered
// events to emitter.
func (tx *Tx) Commit(emitter events.Emitter) error {
	if tx.done {
		return ErrTxClosed
	}
	tx.done = true
	if _, err := tx.journal.Commit(); err != nil {
		return err
	}
	if emitter != nil {
		for _, ev := range tx.events.Events() {
			emitter.Emit(ev)
		}
	}
	tx.events.Reset()
	return nil
}

// Abort drops every write including the value escrow.
func (tx *Tx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.journal.Discard()
	tx.events.Reset()
}
