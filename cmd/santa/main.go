package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/example/secret-santa/internal/adapters"
	"github.com/example/secret-santa/internal/application"
	"github.com/example/secret-santa/internal/config"
	httptransport "github.com/example/secret-santa/internal/http"
	"github.com/example/secret-santa/internal/logging"
	"github.com/example/secret-santa/internal/matching"
	"github.com/example/secret-santa/internal/notify"
	"github.com/example/secret-santa/internal/persistence"
	"github.com/example/secret-santa/internal/persistence/memory"
	"github.com/example/secret-santa/internal/persistence/sqlite"
	"github.com/example/secret-santa/internal/persistence/sqlite/migration"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("santa API stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("santa API listening", "addr", server.Addr, "storage", cfg.Storage, "notifications", cfg.NotificationsEnabled())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

type app struct {
	handler http.Handler
	closers []io.Closer
	logger  *slog.Logger
}

// Close releases storage and broker connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
}

type storage interface {
	persistence.UserRepository
	persistence.EventRepository
	Ping(ctx context.Context) error
	io.Closer
}

type sqliteStorage struct {
	*sqlite.ConnectionPool
	*sqlite.UserRepository
	*sqlite.EventRepository
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	case config.StorageSQLite:
		sqliteCfg := migration.DefaultSQLiteConfig(cfg.SQLitePath)
		sqliteCfg.BusyTimeout = cfg.SQLiteBusyTimeout

		pool, err := sqlite.NewConnectionPool(ctx, sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		if err := pool.Migrate(ctx, logger); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		return sqliteStorage{
			ConnectionPool:  pool,
			UserRepository:  sqlite.NewUserRepository(pool),
			EventRepository: sqlite.NewEventRepository(pool),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

func newNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (application.Notifier, io.Closer, error) {
	if !cfg.NotificationsEnabled() {
		return notify.NewLogNotifier(logger), nil, nil
	}
	client, err := notify.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return notify.NewRedisNotifier(client, cfg.RedisChannel, logger), client, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	notifier, closer, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	idGenerator := uuid.NewString
	now := func() time.Time { return time.Now().UTC() }

	users := adapters.NewUserStore(store)
	events := adapters.NewEventStore(store)

	userService := application.NewUserServiceWithLogger(users, application.NewArgon2idHasher(application.DefaultArgon2idParams), idGenerator, now, logger)
	eventService := application.NewEventServiceWithLogger(events, users, matching.NewEngine(nil), notifier, idGenerator, now, logger)

	middleware := []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)}
	if len(cfg.CORSOrigins) > 0 {
		middleware = append([]func(http.Handler) http.Handler{corsMiddleware(cfg.CORSOrigins)}, middleware...)
	}

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Users:      httptransport.NewUserHandler(userService, logger),
		Events:     httptransport.NewEventHandler(eventService, logger),
		Identity:   userService,
		Storage:    store,
		Logger:     logger,
		Middleware: middleware,
	})
	return a, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", httptransport.UserIDHeader, httptransport.RequestIDHeader},
		ExposedHeaders: []string{httptransport.RequestIDHeader},
		MaxAge:         600,
	}).Handler
}
