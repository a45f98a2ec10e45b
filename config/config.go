package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lendledger/crypto"
	"lendledger/native/lending"
)

type Config struct {
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	OwnerKeyPath string `toml:"OwnerKeyPath"`
	// GenesisBalances credits principals once when the data directory is
	// first initialised. Keys are bech32 or hex addresses.
	GenesisBalances map[string]string `toml:"GenesisBalances,omitempty"`

	Lending Lending `toml:"lending"`
	Pauses  Pauses  `toml:"pauses"`
	Quota   Quota   `toml:"quota"`
}

func defaults() *Config {
	return &Config{
		DataDir:     "./lend-data",
		NetworkName: "lend-local",
		Lending:     lendingFromParams(lending.DefaultParams()),
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults; keys absent from an existing file keep their defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaults()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "OwnerKey" {
			return nil, fmt.Errorf("config file %s embeds OwnerKey; move it to a file referenced by OwnerKeyPath", path)
		}
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "lend-local"
	}
	if err := ensureOwnerKey(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureOwnerKey(configPath string, cfg *Config) error {
	keyPath := cfg.OwnerKeyPath
	if keyPath == "" {
		keyPath = defaultOwnerKeyPath(configPath)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := saveKey(keyPath, key); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeyPath != keyPath {
		cfg.OwnerKeyPath = keyPath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keyPath := defaultOwnerKeyPath(path)
	if err := saveKey(keyPath, key); err != nil {
		return nil, err
	}

	cfg := defaults()
	cfg.OwnerKeyPath = keyPath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOwnerKey reads the owner key referenced by the configuration.
func (c *Config) LoadOwnerKey() (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(c.OwnerKeyPath)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("config: decode owner key: %w", err)
	}
	return crypto.PrivateKeyFromBytes(decoded)
}

func saveKey(path string, key *crypto.PrivateKey) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())+"\n"), 0o600)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultOwnerKeyPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.key")
}
