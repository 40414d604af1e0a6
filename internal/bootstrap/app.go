package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/adapters/reaper"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/observability/statsd"
	"github.com/ragbox/ragbox/internal/service"
)

// App is a fully wired server. Build it with NewApp and start it with Run.
type App struct {
	Config  *config.AppConfig
	Stores  *Stores
	Auth    *AuthComponents
	Limiter *service.RateLimiter
	Reaper  *reaper.Runner
	Handler http.Handler

	statsd *statsd.Client
	logger *slog.Logger
}

// AppDeps contains dependencies for NewApp.
type AppDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// HTTPClient overrides the client used to talk to the identity provider.
	HTTPClient *http.Client
}

// NewApp connects stores, builds the auth stack for the configured mode and
// assembles the HTTP handler.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("app: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	sink, err := newMetricsClient(cfg.Observability.Metrics, logger)
	if err != nil {
		return nil, err
	}
	recorder := metrics.NewRecorder(sink)

	stores, err := OpenStores(ctx, StoresConfig{Config: cfg, Logger: logger})
	if err != nil {
		return nil, errors.Join(err, sink.Close())
	}

	auth, err := BuildAuth(ctx, AuthDeps{
		Config:     cfg.Auth,
		Stores:     stores,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
		Metrics:    recorder,
	})
	if err != nil {
		return nil, errors.Join(err, stores.Close(), sink.Close())
	}

	var limiter *service.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = service.NewRateLimiter(service.RateLimiterOptions{
			Max:           cfg.RateLimit.Max,
			Window:        cfg.RateLimit.Window,
			SweepInterval: cfg.RateLimit.SweepInterval,
			Logger:        logger,
			Metrics:       recorder,
		})
	}

	var tokenReaper *reaper.Runner
	if cfg.TokenReaper.Enabled {
		tokenReaper, err = reaper.NewRunner(reaper.RunnerOptions{
			Purger: auth.Tokens,
			Config: cfg.TokenReaper,
			Logger: logger,
		})
		if err != nil {
			return nil, errors.Join(err, stores.Close(), sink.Close())
		}
	}

	handler := BuildHTTPHandler(HTTPHandlerConfig{
		Config:  cfg,
		Auth:    auth,
		Limiter: limiter,
		Logger:  logger,
		Metrics: recorder,
	})

	return &App{
		Config:  cfg,
		Stores:  stores,
		Auth:    auth,
		Limiter: limiter,
		Reaper:  tokenReaper,
		Handler: handler,
		statsd:  sink,
		logger:  logger,
	}, nil
}

func newMetricsClient(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if client.Enabled() {
		logger.Info("statsd metrics enabled", "addr", cfg.StatsdAddress, "prefix", cfg.Prefix)
	}
	return client, nil
}

// Run serves HTTP on ln (or the configured address when ln is nil) together
// with the background sweepers. It returns when ctx is canceled or any of
// them fails, after shutting the others down.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	server := NewHTTPServer(a.Config.HTTP.Addr, a.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ServeHTTP(gctx, server, ln, a.logger)
	})
	g.Go(func() error {
		return a.Stores.RunSweeper(gctx)
	})
	if a.Limiter != nil {
		g.Go(func() error {
			return a.Limiter.Run(gctx)
		})
	}
	if a.Reaper != nil {
		g.Go(func() error {
			return a.Reaper.Run(gctx)
		})
	}

	a.logger.InfoContext(ctx, "ragbox auth started",
		"auth_mode", a.Config.Auth.Mode,
		"storage", a.Config.Storage,
		"rate_limit", a.Limiter != nil,
	)
	return g.Wait()
}

// Close releases the stores and the metrics socket.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return errors.Join(a.Stores.Close(), a.statsd.Close())
}

// Run builds an App from cfg and serves until ctx is canceled.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	app, err := NewApp(ctx, AppDeps{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && logger != nil {
			logger.ErrorContext(ctx, "shutdown cleanup failed", "error", cerr)
		}
	}()
	return app.Run(ctx, nil)
}
