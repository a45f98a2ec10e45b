package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoney(1050)
	b := NewMoney(50)
	if got := a.Add(b).String(); got != "1100" {
		t.Fatalf("unexpected sum %s", got)
	}
	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.String() != "1000" {
		t.Fatalf("unexpected difference %s", diff)
	}
	if _, err := b.Sub(a); !errors.Is(err, ErrMoneyUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if !b.SaturatingSub(a).IsZero() {
		t.Fatalf("saturating sub should floor at zero")
	}
	if a.Min(b).Cmp(b) != 0 {
		t.Fatalf("min should pick the smaller amount")
	}
}

func TestMoneyRange(t *testing.T) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	if _, err := MoneyFromBig(limit); !errors.Is(err, ErrMoneyRange) {
		t.Fatalf("expected range error for 2^128, got %v", err)
	}
	max := new(big.Int).Sub(limit, big.NewInt(1))
	m, err := MoneyFromBig(max)
	if err != nil {
		t.Fatalf("2^128-1 should fit: %v", err)
	}
	if m.Big().Cmp(max) != 0 {
		t.Fatalf("value mismatch")
	}
	if _, err := ParseMoney("-5"); err == nil {
		t.Fatalf("negative amounts must be rejected")
	}
}

func TestMoneyEncoding(t *testing.T) {
	type record struct {
		ID     uint64
		Amount Money
	}
	in := record{ID: 7, Amount: NewMoney(123456789)}
	raw, err := rlp.EncodeToBytes(&in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out record
	if err := rlp.DecodeBytes(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Amount.Cmp(in.Amount) != 0 || out.ID != 7 {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	js, err := json.Marshal(map[string]Money{"amount": NewMoney(42)})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(js) != `{"amount":"42"}` {
		t.Fatalf("unexpected json %s", js)
	}
}
