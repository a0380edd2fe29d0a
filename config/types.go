package config

// Escrow sets the lock parameters. Durations are in seconds.
type Escrow struct {
	EpochSeconds   uint64 `toml:"EpochSeconds"`
	MinLockSeconds uint64 `toml:"MinLockSeconds"`
	MaxLockSeconds uint64 `toml:"MaxLockSeconds"`
}

// Accrual tunes the gauge and bribe reward accumulators.
type Accrual struct {
	GranularitySeconds uint64 `toml:"GranularitySeconds"`
	MaxSteps           int    `toml:"MaxSteps"`
}

// Emission describes the minter schedule inline. ScheduleFile, when set,
// replaces the inline values with a TOML, JSON or YAML schedule file.
// Amounts are base-10 strings in the token's smallest unit.
type Emission struct {
	Initial      string `toml:"Initial"`
	DecayNum     uint64 `toml:"DecayNum"`
	DecayDen     uint64 `toml:"DecayDen"`
	Tail         string `toml:"Tail"`
	SupplyCap    string `toml:"SupplyCap"`
	ScheduleFile string `toml:"ScheduleFile,omitempty"`
}

// Keeper schedules the maintenance jobs using six-field cron specs.
type Keeper struct {
	Enabled      bool   `toml:"Enabled"`
	EmissionSpec string `toml:"EmissionSpec"`
	FeeSpec      string `toml:"FeeSpec"`
	MaxCatchUp   int    `toml:"MaxCatchUp"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ListenAddress      string `toml:"ListenAddress"`
	ReadHeaderTimeout  int    `toml:"ReadHeaderTimeout"`
	ReadTimeout        int    `toml:"ReadTimeout"`
	WriteTimeout       int    `toml:"WriteTimeout"`
	IdleTimeout        int    `toml:"IdleTimeout"`
	MaxBodyBytes       int64  `toml:"MaxBodyBytes"`
	SignatureMaxAgeSec int64  `toml:"SignatureMaxAgeSec"`
	ReplayCache        string `toml:"ReplayCache"`
}

// Gateway configures the public HTTP edge in front of the RPC server.
type Gateway struct {
	ListenAddress  string   `toml:"ListenAddress"`
	RateLimitRPS   float64  `toml:"RateLimitRPS"`
	RateLimitBurst int      `toml:"RateLimitBurst"`
	JWTSecretEnv   string   `toml:"JWTSecretEnv"`
	JWTIssuer      string   `toml:"JWTIssuer"`
	AllowOrigins   []string `toml:"AllowOrigins"`
}

// Logging configures the structured logger.
type Logging struct {
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Enabled     bool    `toml:"Enabled"`
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Indexer mirrors committed events into a SQL database. An empty Driver
// disables it.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}
