package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vedex/gateway/middleware"
)

const rpcRateKey = "rpc"

// Config wires the public HTTP edge in front of the JSON-RPC server.
type Config struct {
	RateLimit   middleware.RateLimit
	Auth        middleware.AuthConfig
	CORS        middleware.CORSConfig
	LogRequests bool
	Logger      *slog.Logger
}

// New mounts rpcHandler behind the gateway middleware. JSON-RPC is served
// on /rpc, the event stream on /ws, and health and metrics alongside.
func New(rpcHandler http.Handler, cfg Config) (http.Handler, error) {
	if rpcHandler == nil {
		return nil, errors.New("gateway: rpc handler required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := middleware.NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{rpcRateKey: cfg.RateLimit}, logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "gateway",
		LogRequests: cfg.LogRequests,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.Gatherers{prometheus.DefaultGatherer, obs.Gatherer()}, promhttp.HandlerOpts{}))

	r.Group(func(gr chi.Router) {
		gr.Use(limiter.Middleware(rpcRateKey))
		gr.Use(auth.Middleware())
		gr.With(obs.Middleware("rpc")).Post("/rpc", rpcHandler.ServeHTTP)
		gr.With(obs.Middleware("ws")).Get("/ws", rpcHandler.ServeHTTP)
	})

	return otelhttp.NewHandler(r, "gateway"), nil
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
