package lending

import (
	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/storage"
)

// Host supplies the ambient state of one transaction. A fresh Host is passed
// to every mutating call.
type Host interface {
	Caller() crypto.Address
	BlockNumber() uint64
	TransferredValue() types.Money
	// Transfer moves value out of the engine's account. It is only invoked
	// after the transaction's writes have been committed.
	Transfer(to crypto.Address, amount types.Money) error
	Emit(events.Event)
}

// StorageHost is implemented by hosts that scope storage to the transaction.
// When present the engine commits its writes into the host's storage instead
// of the engine's default database, letting the host commit or abort the
// whole transaction atomically.
type StorageHost interface {
	Host
	Storage() storage.Database
}

// ModuleAddress is the account that holds funds in flight between principals.
var ModuleAddress = crypto.DeriveAddress("module/lending")
