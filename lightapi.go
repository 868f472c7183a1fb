// Package lightapi derives a RESTful HTTP surface from declared data models:
// register a model descriptor at a mount path and the seven CRUD operations
// are generated; register a custom handler to replace the generated behavior
// for a path. The backing store is selected by a connection string.
package lightapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iklobato/lightapi/adapters/auth"
	"github.com/iklobato/lightapi/adapters/clock"
	"github.com/iklobato/lightapi/adapters/hasher"
	lhttp "github.com/iklobato/lightapi/adapters/http"
	"github.com/iklobato/lightapi/adapters/idgen"
	"github.com/iklobato/lightapi/adapters/memory"
	"github.com/iklobato/lightapi/adapters/metrics"
	"github.com/iklobato/lightapi/adapters/postgres"
	"github.com/iklobato/lightapi/adapters/sqlite"
	"github.com/iklobato/lightapi/app"
	"github.com/iklobato/lightapi/config"
	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/ports"
)

// App owns the registry, the storage backend, and the HTTP server.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	storage ports.Storage
	service *app.Service
	tokens  *auth.TokenService
	creds   *auth.Credentials
	server  *http.Server
}

// New builds an application from configuration: logger, storage backend
// (selected by the connection-string scheme), auth gate, and the route table
// seeded with any resources declared in the config.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Logging)

	storage, err := OpenStorage(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger, storage: storage}

	var gate ports.Authenticator
	if cfg.Auth.Enabled {
		tokens, err := auth.NewTokenService(ctx, cfg.Auth.JWTSecret, cfg.Auth.Expiration, storage, clock.Real{})
		if err != nil {
			storage.Close()
			return nil, err
		}
		creds, err := auth.NewCredentials(ctx, storage, hasher.NewBcrypt(0), tokens)
		if err != nil {
			storage.Close()
			return nil, err
		}
		a.tokens = tokens
		a.creds = creds
		gate = tokens
	}

	a.service = app.NewService(app.Deps{
		Storage: storage,
		Auth:    gate,
		Logger:  logger,
	})

	for _, rc := range cfg.Resources {
		if err := a.service.Register(ctx, rc.Path, rc.Descriptor()); err != nil {
			storage.Close()
			return nil, err
		}
	}
	return a, nil
}

// Register binds a model descriptor at path (or at /<name> when path is "").
func (a *App) Register(path string, d *model.Descriptor) error {
	return a.service.Register(context.Background(), path, d)
}

// RegisterHandler binds a custom handler at path.
func (a *App) RegisterHandler(path string, spec app.HandlerSpec) error {
	return a.service.RegisterHandler(path, spec)
}

// Service exposes the route table and dispatcher.
func (a *App) Service() *app.Service { return a.service }

// Tokens exposes the token service when auth is enabled, else nil.
func (a *App) Tokens() *auth.TokenService { return a.tokens }

// Credentials exposes the account helper when auth is enabled, else nil.
func (a *App) Credentials() *auth.Credentials { return a.creds }

// Handler builds the HTTP handler: reserved endpoints plus the dispatcher.
func (a *App) Handler() http.Handler {
	var m *metrics.Collector
	if a.cfg.Metrics.Enabled {
		m = metrics.New()
	}
	api := lhttp.NewAPIHandler(a.service, a.logger, m)
	return lhttp.NewRouter(api, a.logger, lhttp.RouterConfig{
		Metrics: m,
		Timeout: a.cfg.Server.WriteTimeout,
	})
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server
// error, then shuts down gracefully.
func (a *App) Run() error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("starting http server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	return a.Shutdown()
}

// Shutdown stops the server and closes the storage backend.
func (a *App) Shutdown() error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.storage.Close()
			return err
		}
	}
	return a.storage.Close()
}

// OpenStorage selects a backend from the connection-string scheme:
// postgres:// for PostgreSQL, sqlite:// or a bare file path for SQLite, empty
// for the ephemeral in-memory store.
func OpenStorage(dsn string) (ports.Storage, error) {
	gen := idgen.UUID{}
	switch {
	case dsn == "":
		return memory.New(gen), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn, gen)
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"), gen)
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("unsupported database url %q", dsn)
	default:
		return sqlite.Open(dsn, gen)
	}
}

// NewLogger builds a zerolog logger from logging config.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
