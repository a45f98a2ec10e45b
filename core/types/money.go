package types

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	// ErrMoneyUnderflow is returned when a subtraction would go below zero.
	ErrMoneyUnderflow = errors.New("money: subtraction underflow")
	// ErrMoneyRange is returned for values outside the 128-bit ledger range.
	ErrMoneyRange = errors.New("money: value out of range")
)

// maxMoneyBits bounds every ledger amount so that sums and the kernel's
// intermediate products cannot wrap the 256-bit representation.
const maxMoneyBits = 128

// Money is an amount of base units. It only supports addition and
// subtraction; scaling by rates lives in the lending kernel.
type Money struct {
	v uint256.Int
}

// NewMoney wraps a uint64 amount.
func NewMoney(amount uint64) Money {
	var m Money
	m.v.SetUint64(amount)
	return m
}

// MoneyFromBig converts a non-negative big integer. Values wider than 128 bits
// are rejected.
func MoneyFromBig(b *big.Int) (Money, error) {
	var m Money
	if b == nil {
		return m, nil
	}
	if b.Sign() < 0 || b.BitLen() > maxMoneyBits {
		return m, ErrMoneyRange
	}
	m.v.SetFromBig(b)
	return m, nil
}

// MoneyFromWide converts a non-negative big integer of up to 256 bits. It is
// meant for intermediate kernel results rather than external input.
func MoneyFromWide(b *big.Int) (Money, error) {
	var m Money
	if b == nil {
		return m, nil
	}
	if b.Sign() < 0 {
		return m, ErrMoneyRange
	}
	if overflow := m.v.SetFromBig(b); overflow {
		return Money{}, ErrMoneyRange
	}
	return m, nil
}

// ParseMoney parses a base-10 amount.
func ParseMoney(s string) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Money{}, nil
	}
	b, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Money{}, fmt.Errorf("money: invalid amount %q", s)
	}
	return MoneyFromBig(b)
}

func (m Money) Add(o Money) Money {
	var out Money
	out.v.Add(&m.v, &o.v)
	return out
}

// Sub returns m - o or ErrMoneyUnderflow.
func (m Money) Sub(o Money) (Money, error) {
	var out Money
	if _, underflow := out.v.SubOverflow(&m.v, &o.v); underflow {
		return Money{}, ErrMoneyUnderflow
	}
	return out, nil
}

// SaturatingSub returns m - o, or zero when o exceeds m.
func (m Money) SaturatingSub(o Money) Money {
	if m.Cmp(o) <= 0 {
		return Money{}
	}
	out, _ := m.Sub(o)
	return out
}

func (m Money) Cmp(o Money) int { return m.v.Cmp(&o.v) }

func (m Money) IsZero() bool { return m.v.IsZero() }

// Min returns the smaller of the two amounts.
func (m Money) Min(o Money) Money {
	if m.Cmp(o) <= 0 {
		return m
	}
	return o
}

// Uint64 returns the amount truncated to 64 bits and whether it fit.
func (m Money) Uint64() (uint64, bool) {
	return m.v.Uint64(), m.v.IsUint64()
}

// Big returns a fresh big integer holding the amount.
func (m Money) Big() *big.Int { return m.v.ToBig() }

func (m Money) String() string { return m.v.Dec() }

func (m Money) MarshalText() ([]byte, error) { return []byte(m.v.Dec()), nil }

func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := ParseMoney(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// EncodeRLP stores the amount as a canonical big-endian integer.
func (m Money) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &m.v)
}

func (m *Money) DecodeRLP(s *rlp.Stream) error {
	return s.ReadUint256(&m.v)
}

// SumMoney adds all values.
func SumMoney(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
