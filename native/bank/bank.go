package bank

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/storage"
)

var (
	balancePrefix = []byte("bank/balance/")

	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrZeroAddress       = errors.New("bank: zero address")
)

func balanceKey(addr crypto.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+crypto.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, addr[:]...)
	return ethcrypto.Keccak256(buf)
}

// Bank keeps native balances of principals in a key-value store. It performs
// no locking; callers serialise access or give each transaction its own
// journaled view.
type Bank struct {
	db storage.Database
}

func New(db storage.Database) *Bank { return &Bank{db: db} }

// Balance returns the balance of addr, zero when unknown.
func (b *Bank) Balance(addr crypto.Address) (types.Money, error) {
	raw, err := b.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Money{}, nil
	}
	if err != nil {
		return types.Money{}, err
	}
	var balance types.Money
	if err := rlp.DecodeBytes(raw, &balance); err != nil {
		return types.Money{}, fmt.Errorf("bank: decode balance: %w", err)
	}
	return balance, nil
}

func (b *Bank) setBalance(addr crypto.Address, balance types.Money) error {
	if balance.IsZero() {
		return b.db.Delete(balanceKey(addr))
	}
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("bank: encode balance: %w", err)
	}
	return b.db.Put(balanceKey(addr), encoded)
}

// Credit mints amount into addr.
func (b *Bank) Credit(addr crypto.Address, amount types.Money) error {
	if addr.IsZero() {
		return ErrZeroAddress
	}
	if amount.IsZero() {
		return nil
	}
	balance, err := b.Balance(addr)
	if err != nil {
		return err
	}
	return b.setBalance(addr, balance.Add(amount))
}

// Debit burns amount from addr.
func (b *Bank) Debit(addr crypto.Address, amount types.Money) error {
	if amount.IsZero() {
		return nil
	}
	balance, err := b.Balance(addr)
	if err != nil {
		return err
	}
	next, err := balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, addr, balance, amount)
	}
	return b.setBalance(addr, next)
}

// Move transfers amount from one principal to another.
func (b *Bank) Move(from, to crypto.Address, amount types.Money) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	if err := b.Debit(from, amount); err != nil {
		return err
	}
	return b.Credit(to, amount)
}

var genesisKey = []byte("bank/genesis")

// ApplyGenesis credits the initial balances the first time it runs against a
// store. Later calls are no-ops and report false.
func (b *Bank) ApplyGenesis(balances map[crypto.Address]types.Money) (bool, error) {
	if _, err := b.db.Get(genesisKey); err == nil {
		return false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	for addr, amount := range balances {
		if err := b.Credit(addr, amount); err != nil {
			return false, fmt.Errorf("bank: genesis %s: %w", addr, err)
		}
	}
	if err := b.db.Put(genesisKey, []byte{1}); err != nil {
		return false, err
	}
	return true, nil
}
