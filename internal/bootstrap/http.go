package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ragbox/ragbox/config"
	httpx "github.com/ragbox/ragbox/internal/http"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/service"
)

const shutdownTimeout = 10 * time.Second

// HTTPHandlerConfig contains dependencies for BuildHTTPHandler.
type HTTPHandlerConfig struct {
	Config  *config.AppConfig
	Auth    *AuthComponents
	Limiter *service.RateLimiter // Optional
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// BuildHTTPHandler assembles the gate, the router and the outer middleware.
// Order: Recover -> Logging -> Router.
func BuildHTTPHandler(cfg HTTPHandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	gateOpts := httpx.GateOptions{
		Authenticator:     cfg.Auth.Authenticator,
		AccessTokens:      cfg.Auth.Tokens,
		MaxBodyBytes:      appCfg.HTTP.MaxBodyBytes,
		TrustProxyHeaders: appCfg.HTTP.TrustProxyHeaders,
		Logger:            logger,
		Metrics:           cfg.Metrics,
	}
	// Assigning a nil *RateLimiter would produce a non-nil interface.
	if cfg.Limiter != nil {
		gateOpts.Limiter = cfg.Limiter
	}

	services := httpx.RouterServices{
		Gate:         httpx.NewGate(gateOpts),
		Tokens:       cfg.Auth.Tokens,
		CookieDomain: appCfg.HTTP.CookieDomain,
		CookieSecure: appCfg.HTTP.CookieSecure,
		Logger:       logger,
	}
	if cfg.Auth.Users != nil {
		services.Users = cfg.Auth.Users
	}
	if cfg.Auth.OAuth != nil {
		services.OAuth = cfg.Auth.OAuth
	}

	return httpx.Chain(httpx.NewRouter(services), httpx.Recover(logger), httpx.Logging(logger))
}

// NewHTTPServer returns a server for handler on addr with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP listens until ctx is canceled and then shuts the server down
// gracefully. A nil listener makes it listen on server.Addr.
func ServeHTTP(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if ln != nil {
			logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
			err = server.Serve(ln)
		} else {
			logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "HTTP server stopped")
	return <-errCh
}
