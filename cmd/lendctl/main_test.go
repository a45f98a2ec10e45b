package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/crypto"
)

func TestKeygenWritesKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "owner.key")
	var out bytes.Buffer
	require.NoError(t, runKeygen([]string{"-out", path}, &out))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, strings.TrimSpace(string(raw)), 64)
	require.True(t, strings.HasPrefix(out.String(), "address: "))
	require.NotContains(t, out.String(), "key:")
}

func TestTokenRequiresSecret(t *testing.T) {
	addr := crypto.DeriveAddress("token-subject").String()
	t.Setenv("LENDCTL_TEST_SECRET", "")
	err := runToken([]string{"-subject", addr, "-secret-env", "LENDCTL_TEST_SECRET"}, &bytes.Buffer{})
	require.Error(t, err)

	t.Setenv("LENDCTL_TEST_SECRET", "s3cret")
	var out bytes.Buffer
	require.NoError(t, runToken([]string{"-subject", addr, "-secret-env", "LENDCTL_TEST_SECRET", "-admin"}, &out))
	require.Equal(t, 2, strings.Count(strings.TrimSpace(out.String()), "."))
}

func TestTokenRejectsBadSubject(t *testing.T) {
	t.Setenv("LENDCTL_TEST_SECRET", "s3cret")
	err := runToken([]string{"-subject", "nope", "-secret-env", "LENDCTL_TEST_SECRET"}, &bytes.Buffer{})
	require.Error(t, err)
}
