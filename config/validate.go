package config

import (
	"fmt"
	"strings"

	"lendledger/core/types"
	"lendledger/crypto"
)

// ValidateConfig rejects configurations the engine cannot run with.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if err := cfg.Lending.Params().Validate(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if cfg.Quota.MaxValuePerEpoch > 0 && cfg.Quota.EpochBlocks == 0 {
		return fmt.Errorf("quota: EpochBlocks must be set when MaxValuePerEpoch is")
	}
	if _, err := cfg.Genesis(); err != nil {
		return err
	}
	return nil
}

// Genesis decodes GenesisBalances.
func (c *Config) Genesis() (map[crypto.Address]types.Money, error) {
	out := make(map[crypto.Address]types.Money, len(c.GenesisBalances))
	for rawAddr, rawAmount := range c.GenesisBalances {
		addr, err := crypto.DecodeAddress(rawAddr)
		if err != nil {
			return nil, fmt.Errorf("config: genesis address %q: %w", rawAddr, err)
		}
		amount, err := types.ParseMoney(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("config: genesis amount for %s: %w", rawAddr, err)
		}
		out[addr] = out[addr].Add(amount)
	}
	return out, nil
}
