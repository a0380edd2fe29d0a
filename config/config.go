package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"vedex/crypto"
	"vedex/native/accrual"
	"vedex/native/minter"
	"vedex/native/votingescrow"
)

// AdminPassphraseEnv names the variable holding the admin keystore
// passphrase.
const AdminPassphraseEnv = "VEDEX_ADMIN_PASSPHRASE"

type Config struct {
	DataDir           string   `toml:"DataDir"`
	Token             string   `toml:"Token"`
	Decimals          uint8    `toml:"Decimals"`
	AdminAddress      string   `toml:"AdminAddress"`
	AdminKeystorePath string   `toml:"AdminKeystorePath"`
	PausedModules     []string `toml:"PausedModules"`

	Escrow    Escrow    `toml:"escrow"`
	Accrual   Accrual   `toml:"accrual"`
	Emission  Emission  `toml:"emission"`
	Keeper    Keeper    `toml:"keeper"`
	RPC       RPC       `toml:"rpc"`
	Gateway   Gateway   `toml:"gateway"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithKeystorePassphraseSource supplies the passphrase protecting a newly
// created admin keystore. Without it AdminPassphraseEnv is read.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

// Load loads the configuration from the given path, writing a default file
// and admin keystore when none exists.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{passphrase: func() (string, error) { return os.Getenv(AdminPassphraseEnv), nil }}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys %v", path, undecoded)
	}
	cfg.Token = strings.ToUpper(strings.TrimSpace(cfg.Token))
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if cfg.Emission.ScheduleFile != "" && !filepath.IsAbs(cfg.Emission.ScheduleFile) {
		cfg.Emission.ScheduleFile = filepath.Join(filepath.Dir(path), cfg.Emission.ScheduleFile)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	schedule := minter.DefaultSchedule()
	return &Config{
		DataDir:       "./vedex-data",
		Token:         "VE",
		Decimals:      18,
		PausedModules: []string{},
		Escrow: Escrow{
			EpochSeconds:   votingescrow.Week,
			MinLockSeconds: votingescrow.Week,
			MaxLockSeconds: votingescrow.DefaultMaxLock,
		},
		Accrual: Accrual{
			GranularitySeconds: accrual.DefaultGranularity,
			MaxSteps:           accrual.DefaultMaxSteps,
		},
		Emission: Emission{
			Initial:   schedule.Initial.String(),
			DecayNum:  schedule.DecayNum,
			DecayDen:  schedule.DecayDen,
			Tail:      schedule.Tail.String(),
			SupplyCap: "0",
		},
		Keeper: Keeper{
			Enabled:      true,
			EmissionSpec: "0 * * * * *",
			FeeSpec:      "0 0 * * * *",
			MaxCatchUp:   8,
		},
		RPC: RPC{
			ListenAddress:      "127.0.0.1:8545",
			ReadHeaderTimeout:  5,
			ReadTimeout:        15,
			WriteTimeout:       15,
			IdleTimeout:        60,
			MaxBodyBytes:       1 << 20,
			SignatureMaxAgeSec: 300,
			ReplayCache:        "./vedex-replay.db",
		},
		Gateway: Gateway{
			ListenAddress:  ":8080",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			JWTSecretEnv:   "VEDEX_GATEWAY_JWT_SECRET",
			JWTIssuer:      "vedex",
			AllowOrigins:   []string{},
		},
		Logging: Logging{
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{SampleRatio: 0.1},
	}
}

// createDefault creates and saves a default configuration file together with
// a fresh admin keystore.
func createDefault(path string, passphrase func() (string, error)) (*Config, error) {
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("admin keystore passphrase: %w", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, pass); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.AdminKeystorePath = keystorePath
	cfg.AdminAddress = key.PubKey().Address().String()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}

// Admin decodes the admin address; the zero address when unset.
func (c *Config) Admin() ([20]byte, error) {
	if strings.TrimSpace(c.AdminAddress) == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.AdminAddress))
	if err != nil {
		return [20]byte{}, fmt.Errorf("admin address: %w", err)
	}
	return addr.Raw(), nil
}

// EscrowParams returns the escrow ledger parameters.
func (c *Config) EscrowParams() votingescrow.Params {
	return votingescrow.Params{
		Token:   c.Token,
		Epoch:   c.Escrow.EpochSeconds,
		MinLock: c.Escrow.MinLockSeconds,
		MaxLock: c.Escrow.MaxLockSeconds,
	}
}

// AccrualConfig returns the reward accumulator settings. The reward period
// always equals the epoch.
func (c *Config) AccrualConfig() accrual.Config {
	return accrual.Config{
		Duration:    c.Escrow.EpochSeconds,
		Granularity: c.Accrual.GranularitySeconds,
		MaxSteps:    c.Accrual.MaxSteps,
	}
}

// Schedule resolves the emission schedule from the schedule file or the
// inline values.
func (c *Config) Schedule() (minter.Schedule, error) {
	if c.Emission.ScheduleFile != "" {
		return minter.LoadSchedule(c.Emission.ScheduleFile)
	}
	return minter.FileSchedule{
		Initial:   c.Emission.Initial,
		DecayNum:  c.Emission.DecayNum,
		DecayDen:  c.Emission.DecayDen,
		Tail:      c.Emission.Tail,
		SupplyCap: c.Emission.SupplyCap,
	}.Parse()
}
