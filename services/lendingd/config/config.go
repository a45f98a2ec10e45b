package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lendledger/core/types"
)

const (
	ClockManual = "manual"
	ClockWall   = "wall"

	ArchiveSQLite   = "sqlite"
	ArchivePostgres = "postgres"
)

// Config captures the runtime settings for the lending daemon. Ledger
// parameters live in the TOML file referenced by EngineConfig.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	EngineConfig  string           `yaml:"engine_config"`
	Auth          AuthConfig       `yaml:"auth"`
	RateLimits    map[string]Limit `yaml:"rate_limits"`
	Clock         ClockConfig      `yaml:"clock"`
	Archive       ArchiveConfig    `yaml:"archive"`
	Log           LogConfig        `yaml:"log"`
	CORS          CORSConfig       `yaml:"cors"`
	Faucet        FaucetConfig     `yaml:"faucet"`
	Metrics       MetricsConfig    `yaml:"metrics"`
	ShutdownGrace time.Duration    `yaml:"shutdown_grace"`
}

// AuthConfig configures bearer token validation. With auth disabled the
// caller is read from the X-Caller header, which is only acceptable on
// loopback development setups.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmac_secret"`
	HMACSecretEnv  string        `yaml:"hmac_secret_env"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	AllowAnonymous bool          `yaml:"allow_anonymous_reads"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
}

type Limit struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// ClockConfig selects how block heights are produced.
type ClockConfig struct {
	Mode        string        `yaml:"mode"`
	StartHeight uint64        `yaml:"start_height"`
	Genesis     string        `yaml:"genesis"`
	BlockTime   time.Duration `yaml:"block_time"`
}

// ArchiveConfig configures the relational event archive. An empty driver
// disables it.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// FaucetConfig enables crediting balances over HTTP for test networks.
type FaucetConfig struct {
	Enabled   bool   `yaml:"enabled"`
	MaxAmount string `yaml:"max_amount"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func defaults() Config {
	return Config{
		ListenAddress: ":8080",
		EngineConfig:  "./config.toml",
		Auth: AuthConfig{
			Enabled:   true,
			Issuer:    "lendingd",
			ClockSkew: 2 * time.Minute,
		},
		RateLimits: map[string]Limit{
			"write": {RatePerSecond: 5, Burst: 10},
			"read":  {RatePerSecond: 50, Burst: 100},
		},
		Clock:         ClockConfig{Mode: ClockManual, BlockTime: 5 * time.Second},
		Metrics:       MetricsConfig{Enabled: true, Path: "/metrics"},
		ShutdownGrace: 10 * time.Second,
	}
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.EngineConfig = strings.TrimSpace(cfg.EngineConfig)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if env := strings.TrimSpace(cfg.Auth.HMACSecretEnv); env != "" && cfg.Auth.HMACSecret == "" {
		cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(env))
	}
	cfg.Clock.Mode = strings.ToLower(strings.TrimSpace(cfg.Clock.Mode))
	if cfg.Clock.Mode == "" {
		cfg.Clock.Mode = ClockManual
	}
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	cfg.Metrics.Path = strings.TrimSpace(cfg.Metrics.Path)
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	origins := cfg.CORS.AllowedOrigins[:0]
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins
}

func (cfg Config) validate() error {
	if cfg.EngineConfig == "" {
		return fmt.Errorf("engine_config is required")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret (or hmac_secret_env) is required when auth is enabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must not be negative", name)
		}
	}
	switch cfg.Clock.Mode {
	case ClockManual:
	case ClockWall:
		if _, err := cfg.Clock.GenesisTime(); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
		if cfg.Clock.BlockTime <= 0 {
			return fmt.Errorf("clock: block_time must be positive")
		}
	default:
		return fmt.Errorf("clock: unknown mode %q", cfg.Clock.Mode)
	}
	switch cfg.Archive.Driver {
	case "":
	case ArchiveSQLite, ArchivePostgres:
		if cfg.Archive.DSN == "" {
			return fmt.Errorf("archive: dsn is required for driver %s", cfg.Archive.Driver)
		}
	default:
		return fmt.Errorf("archive: unsupported driver %q", cfg.Archive.Driver)
	}
	if cfg.Faucet.Enabled {
		if _, err := cfg.Faucet.Limit(); err != nil {
			return fmt.Errorf("faucet: %w", err)
		}
	}
	return nil
}

// GenesisTime parses the wall clock genesis in RFC 3339.
func (c ClockConfig) GenesisTime() (time.Time, error) {
	if strings.TrimSpace(c.Genesis) == "" {
		return time.Time{}, fmt.Errorf("genesis is required for wall clock mode")
	}
	return time.Parse(time.RFC3339, strings.TrimSpace(c.Genesis))
}

// Limit returns the per-request faucet cap. Zero means unlimited.
func (f FaucetConfig) Limit() (types.Money, error) {
	if strings.TrimSpace(f.MaxAmount) == "" {
		return types.Money{}, nil
	}
	return types.ParseMoney(strings.TrimSpace(f.MaxAmount))
}
