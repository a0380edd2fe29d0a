package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vedex/cmd/internal/passphrase"
	"vedex/config"
	"vedex/core"
	"vedex/core/keeper"
	"vedex/gateway"
	"vedex/gateway/middleware"
	"vedex/indexer"
	"vedex/observability"
	"vedex/observability/logging"
	telemetry "vedex/observability/otel"
	"vedex/rpc"
	"vedex/storage"
)

const (
	envName             = "VEDEX_ENV"
	defaultSignatureAge = 5 * time.Minute
	otelHeadersEnv      = "OTEL_EXPORTER_OTLP_HEADERS"
	shutdownDeadline    = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	dataDir := flag.String("data-dir", "", "Override the configured data directory")
	flag.Parse()

	if err := run(*configFile, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "vedexd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, dataDirOverride string) error {
	// The passphrase is only requested when a fresh config and admin
	// keystore are generated.
	adminPass := passphrase.NewSource(config.AdminPassphraseEnv, "admin keystore")
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(adminPass.GetConfirmed))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}

	env := strings.TrimSpace(os.Getenv(envName))
	if env == "" {
		env = cfg.Logging.Env
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "vedexd",
		Env:        env,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      logging.ParseLevel(env),
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		providers, err := telemetry.Init(ctx, telemetry.Config{
			Service:     "vedexd",
			Environment: env,
			RewardToken: cfg.Token,
			Epoch:       time.Duration(cfg.Escrow.EpochSeconds) * time.Second,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv(otelHeadersEnv)),
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	node, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer node.Close()
	node.Subscribe(observability.Events())
	node.SetObserver(observability.Calls())
	if cfg.Telemetry.Enabled {
		reg, err := telemetry.RegisterEmissionGauges(node, cfg.Decimals)
		if err != nil {
			return fmt.Errorf("register emission gauges: %w", err)
		}
		defer reg.Unregister()
	}

	var events rpc.EventStore
	if driver := strings.TrimSpace(cfg.Indexer.Driver); driver != "" {
		db, err := indexer.Open(driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		ix, err := indexer.New(db, logger)
		if err != nil {
			return err
		}
		defer ix.Close()
		node.Subscribe(ix)
		events = ix
		logger.Info("event indexer enabled", slog.String("driver", driver))
	}

	if cfg.Keeper.Enabled {
		k, err := keeper.New(node, keeper.Config{
			EmissionSpec: cfg.Keeper.EmissionSpec,
			FeeSpec:      cfg.Keeper.FeeSpec,
			MaxCatchUp:   cfg.Keeper.MaxCatchUp,
		}, logger)
		if err != nil {
			return err
		}
		k.Start()
		defer k.Stop()
	}

	signatureMaxAge := time.Duration(cfg.RPC.SignatureMaxAgeSec) * time.Second
	var replay rpc.ReplayCache
	if path := strings.TrimSpace(cfg.RPC.ReplayCache); path != "" {
		window := 2 * signatureMaxAge
		if window <= 0 {
			window = 2 * defaultSignatureAge
		}
		cache, err := rpc.OpenBoltReplay(path, window)
		if err != nil {
			return err
		}
		defer cache.Close()
		replay = cache
	}

	srv, err := rpc.NewServer(node, rpc.ServerConfig{
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		SignatureMaxAge:   signatureMaxAge,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
		Logger:            logger,
		Events:            events,
		Replay:            replay,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.Serve(ctx, cfg.RPC.ListenAddress) }()

	if addr := strings.TrimSpace(cfg.Gateway.ListenAddress); addr != "" {
		handler, err := gateway.New(srv.Handler(), gatewayConfig(cfg, logger))
		if err != nil {
			return err
		}
		running++
		go func() { errCh <- gateway.Serve(ctx, addr, handler, logger) }()
	}

	logger.Info("vedexd started",
		slog.String("rpc", cfg.RPC.ListenAddress),
		slog.String("gateway", cfg.Gateway.ListenAddress),
		slog.String("token", cfg.Token))

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	logger.Info("vedexd stopped")
	return firstErr
}

func openNode(cfg *config.Config, logger *slog.Logger) (*core.Node, error) {
	admin, err := cfg.Admin()
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("emission schedule: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	node, err := core.NewNode(db, core.Options{
		Token:    cfg.Token,
		Decimals: cfg.Decimals,
		Admin:    admin,
		Escrow:   cfg.EscrowParams(),
		Accrual:  cfg.AccrualConfig(),
		Schedule: schedule,
		Paused:   cfg.PausedModules,
		Logger:   logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create node: %w", err)
	}
	return node, nil
}

func gatewayConfig(cfg *config.Config, logger *slog.Logger) gateway.Config {
	secret := ""
	if name := strings.TrimSpace(cfg.Gateway.JWTSecretEnv); name != "" {
		secret = os.Getenv(name)
	}
	if secret == "" {
		logger.Warn("gateway bearer auth disabled; no JWT secret in environment",
			slog.String("env", cfg.Gateway.JWTSecretEnv))
	}
	return gateway.Config{
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.Gateway.RateLimitRPS,
			Burst:         cfg.Gateway.RateLimitBurst,
		},
		Auth: middleware.AuthConfig{
			Enabled:    secret != "",
			HMACSecret: secret,
			Issuer:     cfg.Gateway.JWTIssuer,
		},
		CORS:        middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowOrigins},
		LogRequests: true,
		Logger:      logger,
	}
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}
