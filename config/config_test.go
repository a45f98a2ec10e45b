package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/crypto"
	"lendledger/native/lending"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "lend-local", cfg.NetworkName)
	require.Equal(t, filepath.Join(dir, "owner.key"), cfg.OwnerKeyPath)
	require.Equal(t, lending.DefaultParams(), cfg.Lending.Params())

	_, err = os.Stat(path)
	require.NoError(t, err)

	key, err := cfg.LoadOwnerKey()
	require.NoError(t, err)
	require.False(t, key.PubKey().Address().IsZero())

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.OwnerKeyPath, again.OwnerKeyPath)
}

func TestLoadOverridesLendingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
NetworkName = "testnet"

[lending]
ProtocolFeeBps = 25
GracePeriodBlocks = 1000

[pauses]
Lending = true

[quota]
MaxRequestsPerEpoch = 10
MaxValuePerEpoch = 5000
EpochBlocks = 14400
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	params := cfg.Lending.Params()
	require.Equal(t, uint64(25), params.ProtocolFeeBps)
	require.Equal(t, uint64(1000), params.GracePeriodBlocks)
	require.Equal(t, lending.DefaultParams().MaxRefinances, params.MaxRefinances)
	require.Equal(t, []string{"lending"}, cfg.Pauses.Modules())
	require.Equal(t, uint64(1), cfg.Quota.Runtime().Epoch(14_400))

	// The generated key path is written back.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "owner.key"), reloaded.OwnerKeyPath)
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"

[lending]
MaxRateBps = 20000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "max rate")
}

func TestLoadRejectsEmbeddedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("OwnerKey = \"abc\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "OwnerKeyPath")
}

func TestGenesisBalances(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	cfg := defaults()
	cfg.GenesisBalances = map[string]string{alice.String(): "1200"}
	require.NoError(t, ValidateConfig(cfg))
	genesis, err := cfg.Genesis()
	require.NoError(t, err)
	require.Equal(t, "1200", genesis[alice].String())

	cfg.GenesisBalances = map[string]string{"not-an-address": "1"}
	require.ErrorContains(t, ValidateConfig(cfg), "genesis address")

	cfg.GenesisBalances = map[string]string{alice.String(): "ten"}
	require.ErrorContains(t, ValidateConfig(cfg), "genesis amount")
}
