package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
engine_config: "./lend.toml"
auth:
  hmac_secret: " s3cret "
cors:
  allowed_origins: [" https://app.example ", " "]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Auth.HMACSecret != "s3cret" || !cfg.Auth.Enabled {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Clock.Mode != ClockManual {
		t.Fatalf("expected manual clock by default, got %q", cfg.Clock.Mode)
	}
	if len(cfg.RateLimits) != 2 {
		t.Fatalf("expected default rate limits, got %v", cfg.RateLimits)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("unexpected metrics path %q", cfg.Metrics.Path)
	}
}

func TestLoadConfigReadsSecretFromEnv(t *testing.T) {
	t.Setenv("LEND_TEST_SECRET", "from-env")
	path := writeConfig(t, `
auth:
  hmac_secret_env: LEND_TEST_SECRET
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("expected secret from env, got %q", cfg.Auth.HMACSecret)
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when auth is enabled without a secret")
	}
}

func TestLoadConfigWallClock(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: false
clock:
  mode: WALL
  genesis: "2024-01-01T00:00:00Z"
  block_time: 6s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Clock.Mode != ClockWall || cfg.Clock.BlockTime != 6*time.Second {
		t.Fatalf("unexpected clock: %+v", cfg.Clock)
	}
	genesis, err := cfg.Clock.GenesisTime()
	if err != nil || genesis.Year() != 2024 {
		t.Fatalf("unexpected genesis %v (%v)", genesis, err)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"clock mode": `
auth: {enabled: false}
clock: {mode: lunar}
`,
		"wall without genesis": `
auth: {enabled: false}
clock: {mode: wall}
`,
		"archive driver": `
auth: {enabled: false}
archive: {driver: mysql, dsn: "x"}
`,
		"archive dsn": `
auth: {enabled: false}
archive: {driver: sqlite}
`,
		"faucet amount": `
auth: {enabled: false}
faucet: {enabled: true, max_amount: "-5"}
`,
		"unknown field": `
auth: {enabled: false}
listen_port: 1
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
