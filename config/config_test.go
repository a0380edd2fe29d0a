package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vedex/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(AdminPassphraseEnv, "test-passphrase")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, filepath.Join(dir, "admin.keystore"), cfg.AdminKeystorePath)

	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, "test-passphrase")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.AdminAddress)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.AdminAddress, reloaded.AdminAddress)
	require.Equal(t, cfg.Emission, reloaded.Emission)
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
Token = "velo"
Decimals = 18
PausedModules = ["bribe"]

[escrow]
EpochSeconds = 86400
MinLockSeconds = 86400
MaxLockSeconds = 31536000

[accrual]
GranularitySeconds = 3600
MaxSteps = 48

[emission]
Initial = "1000000000000000000000"
DecayNum = 99
DecayDen = 100
Tail = "10000000000000000000"
SupplyCap = "0"

[keeper]
Enabled = true
EmissionSpec = "*/30 * * * * *"
FeeSpec = ""
MaxCatchUp = 2

[indexer]
Driver = "sqlite"
DSN = "file:events.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "VELO", cfg.Token)
	require.Equal(t, []string{"bribe"}, cfg.PausedModules)
	require.Equal(t, uint64(86400), cfg.EscrowParams().Epoch)
	require.Equal(t, uint64(86400), cfg.AccrualConfig().Duration)
	require.Equal(t, 48, cfg.AccrualConfig().MaxSteps)

	schedule, err := cfg.Schedule()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", schedule.Initial.String())
	require.Equal(t, uint64(99), schedule.DecayNum)
	// Sections left out keep their defaults.
	require.Equal(t, "127.0.0.1:8545", cfg.RPC.ListenAddress)
}

func TestLoadResolvesScheduleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "emission.yaml"), []byte(`initial: "500"
decay_num: 1
decay_den: 2
tail: "100"
`), 0o644))
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[emission]\nScheduleFile = \"emission.yaml\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	schedule, err := cfg.Schedule()
	require.NoError(t, err)
	require.Equal(t, "500", schedule.Initial.String())
	require.Equal(t, "100", schedule.Tail.String())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short epoch", func(c *Config) { c.Escrow.EpochSeconds = 60 }, "epoch_seconds"},
		{"min above max", func(c *Config) { c.Escrow.MinLockSeconds = c.Escrow.MaxLockSeconds + 1 }, "min_lock"},
		{"coarse granularity", func(c *Config) { c.Accrual.GranularitySeconds = c.Escrow.EpochSeconds * 2 }, "granularity"},
		{"zero steps", func(c *Config) { c.Accrual.MaxSteps = 0 }, "max_steps"},
		{"growing decay", func(c *Config) { c.Emission.DecayNum = 101 }, "emission"},
		{"bad amount", func(c *Config) { c.Emission.Initial = "lots" }, "emission"},
		{"unknown pause", func(c *Config) { c.PausedModules = []string{"lending"} }, "paused module"},
		{"bad cron", func(c *Config) { c.Keeper.EmissionSpec = "weekly" }, "keeper"},
		{"bad driver", func(c *Config) { c.Indexer.Driver = "mysql" }, "indexer"},
		{"missing dsn", func(c *Config) { c.Indexer.Driver = "postgres" }, "dsn"},
		{"bad admin", func(c *Config) { c.AdminAddress = "nope" }, "admin"},
	}
	require.NoError(t, ValidateConfig(Default()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorContains(t, ValidateConfig(cfg), tc.want)
		})
	}
}

func TestLoadUsesPassphraseSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path, WithKeystorePassphraseSource(func() (string, error) { return "from-source", nil }))
	require.NoError(t, err)
	_, err = crypto.LoadFromKeystore(cfg.AdminKeystorePath, "from-source")
	require.NoError(t, err)

	failing := filepath.Join(t.TempDir(), "config.toml")
	_, err = Load(failing, WithKeystorePassphraseSource(func() (string, error) { return "", os.ErrPermission }))
	require.ErrorIs(t, err, os.ErrPermission)
	require.NoFileExists(t, failing)
}
