// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/auditlog"
	"github.com/starford/ansuz/internal/contentstore"
	"github.com/starford/ansuz/internal/directory"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/invite"
	"github.com/starford/ansuz/internal/kv"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/metacache"
	"github.com/starford/ansuz/internal/postservice"
	"github.com/starford/ansuz/internal/secrets"
	"github.com/starford/ansuz/internal/sse"
)

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openKV(cfg CacheConfig) (kv.Store, error) {
	switch cfg.Backend {
	case CacheBackendBolt:
		return kv.OpenBolt(cfg.Path)
	case CacheBackendMemory:
		return kv.NewMemory(), nil
	default:
		return kv.OpenSQLite(cfg.Path)
	}
}

// services bundles the wired application components.
type services struct {
	kvStore kv.Store
	store   *contentstore.Client
	posts   *postservice.Service
	idp     *identity.Client
	dir     *directory.Directory
	invites *invite.Service
	cipher  *secrets.Cipher
	audit   *auditlog.Logger
	broker  *sse.Broker
}

func buildServices(cfg *Config, logger *slog.Logger) (*services, error) {
	kvStore, err := openKV(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	store := contentstore.New(
		cfg.ContentStore.Owner,
		cfg.ContentStore.Repo,
		cfg.ContentStore.Branch,
		cfg.ContentStore.Token,
		contentstore.WithLogger(logger),
	)
	cache := metacache.New(kvStore, metacache.WithLogger(logger))
	audit := auditlog.New(kvStore)
	broker := sse.NewBroker()

	posts := postservice.NewService(store, cache, cfg.ContentStore.PostsDir,
		postservice.WithPagesDir(cfg.ContentStore.PagesDir),
		postservice.WithAudit(audit),
		postservice.WithEvents(broker),
		postservice.WithLogger(logger),
	)

	sheets, err := directory.NewSheetsClient(cfg.Directory.ServiceAccountKey, cfg.Directory.SpreadsheetID)
	if err != nil {
		kvStore.Close()
		broker.Close()
		return nil, fmt.Errorf("init directory: %w", err)
	}
	dirOpts := []directory.Option{}
	if cfg.Directory.SnapshotTTL > 0 {
		dirOpts = append(dirOpts, directory.WithSnapshotTTL(cfg.Directory.SnapshotTTL))
	}

	cipher, err := secrets.New(cfg.Secrets.Passphrase)
	if err != nil {
		kvStore.Close()
		broker.Close()
		return nil, fmt.Errorf("init secrets: %w", err)
	}

	return &services{
		kvStore: kvStore,
		store:   store,
		posts:   posts,
		idp:     identity.New(cfg.Identity.APIKey),
		dir:     directory.New(sheets, logger, dirOpts...),
		invites: invite.New(kvStore),
		cipher:  cipher,
		audit:   audit,
		broker:  broker,
	}, nil
}

func (s *services) close() {
	s.broker.Close()
	if err := s.kvStore.Close(); err != nil {
		slog.Warn("cache store close failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_repo", cfg.ContentStore.Owner+"/"+cfg.ContentStore.Repo),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	h := api.NewHandler(api.HandlerConfig{
		Posts:     svcs.posts,
		Store:     svcs.store,
		Identity:  svcs.idp,
		Directory: svcs.dir,
		Invites:   svcs.invites,
		Secrets:   svcs.cipher,
		Tokens:    svcs.kvStore,
		Audit:     svcs.audit,
		AssetsDir: cfg.ContentStore.AssetsDir,
		Discord:   cfg.Discord.InviteURL,
		Logger:    logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", api.NewRouter(h, svcs.broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server with the given options.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP speaks on stdout; keep logs on stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	srv := mcpserver.New(svcs.posts, svcs.store, cfg.ContentStore.AssetsDir)
	logger.Info("Starting MCP server on stdio")
	return srv.ServeStdio()
}
