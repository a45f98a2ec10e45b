package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaValue(t *testing.T) {
	q := Quota{MaxValuePerEpoch: 1000}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ValueUsed != 1000 {
		t.Fatalf("unexpected value used: %d", next.ValueUsed)
	}

	if _, err := CheckQuota(q, 5, next, 0, 1); !errors.Is(err, ErrQuotaValueCapExceeded) {
		t.Fatalf("expected ErrQuotaValueCapExceeded, got %v", err)
	}

	if _, err := CheckQuota(Quota{}, 5, QuotaNow{EpochID: 5, ValueUsed: math.MaxUint64}, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestQuotaEpoch(t *testing.T) {
	q := Quota{EpochBlocks: 100}
	if got := q.Epoch(250); got != 2 {
		t.Fatalf("unexpected epoch: %d", got)
	}
	if got := (Quota{}).Epoch(250); got != 0 {
		t.Fatalf("expected zero epoch without epoch length, got %d", got)
	}
}

func TestPausesToggle(t *testing.T) {
	p := NewPauses("lending")
	if err := Guard(p, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	p.Set("lending", false)
	if err := Guard(p, "lending"); err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
	var nilPauses *Pauses
	if nilPauses.IsPaused("lending") {
		t.Fatalf("nil view must not pause")
	}
}
