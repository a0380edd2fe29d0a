package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	// MinEpochSeconds rejects epochs too short for a daily accrual step.
	MinEpochSeconds = uint64(3600)

	knownModules = map[string]struct{}{
		"token": {}, "pool": {}, "escrow": {}, "voter": {},
		"gauge": {}, "bribe": {}, "minter": {}, "rebase": {},
	}
	cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

func ValidateConfig(c *Config) error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("token: symbol required")
	}
	if c.Decimals == 0 || c.Decimals > 36 {
		return fmt.Errorf("token: decimals out of range")
	}
	if _, err := c.Admin(); err != nil {
		return err
	}
	e := c.Escrow
	if e.EpochSeconds < MinEpochSeconds {
		return fmt.Errorf("escrow: epoch_seconds too small")
	}
	if e.MinLockSeconds == 0 || e.MinLockSeconds > e.MaxLockSeconds {
		return fmt.Errorf("escrow: min_lock > max_lock or zero")
	}
	if e.MaxLockSeconds < e.EpochSeconds {
		return fmt.Errorf("escrow: max_lock shorter than one epoch")
	}
	a := c.Accrual
	if a.GranularitySeconds == 0 || a.GranularitySeconds > e.EpochSeconds {
		return fmt.Errorf("accrual: granularity must be within one epoch")
	}
	if a.MaxSteps <= 0 {
		return fmt.Errorf("accrual: max_steps <= 0")
	}
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("emission: %w", err)
	}
	for _, module := range c.PausedModules {
		if _, ok := knownModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("paused module %q unknown", module)
		}
	}
	if c.Keeper.Enabled {
		for _, spec := range []string{c.Keeper.EmissionSpec, c.Keeper.FeeSpec} {
			if spec == "" {
				continue
			}
			if _, err := cronParser.Parse(spec); err != nil {
				return fmt.Errorf("keeper: invalid spec %q: %w", spec, err)
			}
		}
		if c.Keeper.MaxCatchUp < 0 {
			return fmt.Errorf("keeper: max_catch_up < 0")
		}
	}
	if c.RPC.MaxBodyBytes < 0 || c.RPC.SignatureMaxAgeSec < 0 {
		return fmt.Errorf("rpc: negative limit")
	}
	if c.Gateway.RateLimitRPS < 0 || c.Gateway.RateLimitBurst < 0 {
		return fmt.Errorf("gateway: negative rate limit")
	}
	switch strings.ToLower(c.Indexer.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if c.Indexer.Driver != "" && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: dsn required")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio outside [0,1]")
	}
	return nil
}
