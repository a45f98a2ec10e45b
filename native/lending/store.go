package lending

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/storage"
)

var (
	loanPrefix          = []byte("loans/")
	profilePrefix       = []byte("profiles/")
	totalLoansKey       = []byte("total_loans")
	totalLiquidityKey   = []byte("total_liquidity")
	ownerKey            = []byte("owner")
	protocolFeesKey     = []byte("protocol_fees")
	errCorruptedLoanKey = errors.New("lending: stored loan id mismatch")
)

func loanKey(id uint64) []byte {
	return append(append([]byte(nil), loanPrefix...), strconv.FormatUint(id, 10)...)
}

func profileKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), profilePrefix...), addr.Hex()...)
}

// ledger is the typed view over a key-value store. It owns the encoding of
// every record.
type ledger struct {
	db     storage.Database
	params *Params
}

func (l *ledger) get(key []byte, out interface{}) (bool, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("lending: decode %s: %w", key, err)
	}
	return true, nil
}

func (l *ledger) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("lending: encode %s: %w", key, err)
	}
	return l.db.Put(key, encoded)
}

// loan loads a loan or returns ErrLoanNotFound.
func (l *ledger) loan(id uint64) (*Loan, error) {
	if id == 0 {
		return nil, ErrLoanNotFound
	}
	loan := new(Loan)
	ok, err := l.get(loanKey(id), loan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	if loan.ID != id {
		return nil, errCorruptedLoanKey
	}
	return loan, nil
}

func (l *ledger) putLoan(loan *Loan) error {
	loan.refreshBalance()
	return l.put(loanKey(loan.ID), loan)
}

// profile loads a profile, creating the default one lazily. The default is
// not persisted until putProfile.
func (l *ledger) profile(addr crypto.Address) (*UserProfile, error) {
	profile := new(UserProfile)
	ok, err := l.get(profileKey(addr), profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &UserProfile{Address: addr, CreditScore: l.params.DefaultCreditScore}, nil
	}
	return profile, nil
}

func (l *ledger) putProfile(profile *UserProfile) error {
	return l.put(profileKey(profile.Address), profile)
}

func (l *ledger) uint64Value(key []byte) (uint64, error) {
	var v uint64
	if _, err := l.get(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (l *ledger) moneyValue(key []byte) (types.Money, error) {
	var v types.Money
	if _, err := l.get(key, &v); err != nil {
		return types.Money{}, err
	}
	return v, nil
}

func (l *ledger) totalLoans() (uint64, error) { return l.uint64Value(totalLoansKey) }

// nextLoanID post-increments total_loans and returns the new id.
func (l *ledger) nextLoanID() (uint64, error) {
	current, err := l.totalLoans()
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := l.put(totalLoansKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (l *ledger) totalLiquidity() (types.Money, error) { return l.moneyValue(totalLiquidityKey) }

func (l *ledger) setTotalLiquidity(v types.Money) error { return l.put(totalLiquidityKey, v) }

func (l *ledger) protocolFees() (types.Money, error) { return l.moneyValue(protocolFeesKey) }

func (l *ledger) setProtocolFees(v types.Money) error { return l.put(protocolFeesKey, v) }

func (l *ledger) owner() (crypto.Address, error) {
	var owner crypto.Address
	if _, err := l.get(ownerKey, &owner); err != nil {
		return crypto.Address{}, err
	}
	return owner, nil
}

func (l *ledger) setOwner(owner crypto.Address) error { return l.put(ownerKey, owner) }
