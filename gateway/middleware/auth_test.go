package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendledger/crypto"
)

const testSecret = "unit-test-secret"

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		Issuer:         "lendingd",
		OptionalPaths:  []string{"/v1/stats"},
		AllowAnonymous: true,
	}, nil)
}

func TestAuthenticatorInjectsCaller(t *testing.T) {
	caller := crypto.DeriveAddress("alice")
	token, err := IssueToken(testSecret, caller, "lendingd", "", []string{ScopeWrite}, time.Minute)
	require.NoError(t, err)

	var seen crypto.Address
	handler := newTestAuth().Middleware(ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFromContext(r.Context())
		require.Equal(t, []string{ScopeWrite}, ScopesFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, caller, seen)
}

func TestAuthenticatorRejects(t *testing.T) {
	caller := crypto.DeriveAddress("alice")
	wrongIssuer, err := IssueToken(testSecret, caller, "other", "", []string{ScopeWrite}, time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("another-secret", caller, "lendingd", "", []string{ScopeWrite}, time.Minute)
	require.NoError(t, err)
	readOnly, err := IssueToken(testSecret, caller, "lendingd", "", nil, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"issuer", "Bearer " + wrongIssuer, http.StatusUnauthorized},
		{"signature", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"scope", "Bearer " + readOnly, http.StatusForbidden},
	}
	handler := newTestAuth().Middleware(ScopeWrite)(okHandler())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
		})
	}
}

func TestAuthenticatorAllowsAnonymousOptionalPaths(t *testing.T) {
	handler := newTestAuth().Middleware()(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", res.Header().Get(HeaderRequestID))

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, res.Header().Get(HeaderRequestID), 36)
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/loans", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://app.example", res.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/loans", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
