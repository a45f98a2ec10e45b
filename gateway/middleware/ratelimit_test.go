package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lendledger/crypto"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
		"read":  {RatePerSecond: 1, Burst: 1},
	}, nil)
	write := limiter.Middleware("write")(okHandler())
	read := limiter.Middleware("read")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
	res := httptest.NewRecorder()
	write.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected write request to succeed, got %d", res.Code)
	}

	readReq := httptest.NewRequest(http.MethodGet, "/v1/loans/1", nil)
	readRes := httptest.NewRecorder()
	read.ServeHTTP(readRes, readReq)
	if readRes.Code != http.StatusOK {
		t.Fatalf("expected first read request to succeed, got %d", readRes.Code)
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	for _, label := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
		req = req.WithContext(WithCaller(req.Context(), crypto.DeriveAddress(label)))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s to have its own bucket, got %d", label, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RatePerSecond: 1, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(limiter.visitors))
	}

	now = now.Add(10 * time.Minute)
	other := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
	other.Header.Set("X-Real-IP", "10.0.0.9")
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected idle client to be evicted, got %d entries", len(limiter.visitors))
	}
}

func TestClientIDPrefersForwardedAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client id %q", got)
	}
}
