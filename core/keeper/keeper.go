// Package keeper drives the permissionless epoch maintenance calls on a cron
// schedule: the emission tick with its distribution and the fee sweep.
package keeper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"vedex/native/pool"
)

const (
	// DefaultEmissionSpec checks for a due epoch every minute.
	DefaultEmissionSpec = "0 * * * * *"
	// DefaultFeeSpec sweeps trading fees hourly.
	DefaultFeeSpec = "0 0 * * * *"
	// DefaultMaxCatchUp bounds the epochs advanced in one run.
	DefaultMaxCatchUp = 8
)

// Target is the node surface the keeper drives.
type Target interface {
	MinterDue() (bool, error)
	Distro() error
	Gauges() ([]pool.ID, error)
	DistributeFees(pools []pool.ID) error
}

// Config schedules the keeper jobs. An empty spec disables the job.
type Config struct {
	EmissionSpec string
	FeeSpec      string
	MaxCatchUp   int
}

// Keeper owns the cron scheduler.
type Keeper struct {
	target Target
	cfg    Config
	logger *slog.Logger
	cron   *cron.Cron

	mu   sync.Mutex
	runs uint64
}

// New registers the configured jobs without starting them.
func New(target Target, cfg Config, logger *slog.Logger) (*Keeper, error) {
	if target == nil {
		return nil, errors.New("keeper: target required")
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = DefaultMaxCatchUp
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "keeper")
	k := &Keeper{target: target, cfg: cfg, logger: logger}
	cronLog := cronLogger{logger: logger}
	k.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if cfg.EmissionSpec != "" {
		if _, err := k.cron.AddFunc(cfg.EmissionSpec, func() { k.logRun("emission", k.RunEmission()) }); err != nil {
			return nil, fmt.Errorf("keeper: register emission job: %w", err)
		}
	}
	if cfg.FeeSpec != "" {
		if _, err := k.cron.AddFunc(cfg.FeeSpec, func() { k.logRun("fees", k.RunFees()) }); err != nil {
			return nil, fmt.Errorf("keeper: register fee job: %w", err)
		}
	}
	return k, nil
}

// Start starts the scheduler in its own goroutine.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started", "emission", k.cfg.EmissionSpec, "fees", k.cfg.FeeSpec)
}

// Stop waits for running jobs to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.logger.Info("keeper stopped")
}

// Runs returns how many epochs the keeper has advanced.
func (k *Keeper) Runs() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runs
}

// RunEmission advances every due epoch, at most MaxCatchUp per run. Each
// Distro call advances one epoch and pushes the emission into the gauges.
func (k *Keeper) RunEmission() error {
	for i := 0; i < k.cfg.MaxCatchUp; i++ {
		due, err := k.target.MinterDue()
		if err != nil {
			return err
		}
		if !due {
			return nil
		}
		if err := k.target.Distro(); err != nil {
			return err
		}
		k.mu.Lock()
		k.runs++
		k.mu.Unlock()
	}
	k.logger.Warn("emission catch-up truncated", "max", k.cfg.MaxCatchUp)
	return nil
}

// RunFees sweeps the trading fees of every gauged pool into its bribe.
func (k *Keeper) RunFees() error {
	pools, err := k.target.Gauges()
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return nil
	}
	return k.target.DistributeFees(pools)
}

func (k *Keeper) logRun(job string, err error) {
	if err != nil {
		k.logger.Error("keeper job failed", "job", job, "error", err)
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
