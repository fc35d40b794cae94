package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/httpapi"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
	"github.com/p-n-ai/pai-lesson/internal/platform/cache"
	"github.com/p-n-ai/pai-lesson/internal/platform/config"
	"github.com/p-n-ai/pai-lesson/internal/platform/database"
	"github.com/p-n-ai/pai-lesson/internal/platform/logger"
	"github.com/p-n-ai/pai-lesson/internal/records"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Log)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired server and the connections it owns.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires storage, the records service and the HTTP API from cfg.
// Without a database URL records live in memory; without a cache URL drafts
// do too.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	catalog, err := schema.NewLoader(cfg.FieldsPath)
	if err != nil {
		return nil, fmt.Errorf("loading modules: %w", err)
	}

	var (
		repo   records.Repository = records.NewMemoryRepository()
		events records.EventLogger = records.NopEventLogger{}
		checks []httpapi.HealthCheck
	)

	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx, records.Schema); err != nil {
				a.Close()
				return nil, err
			}
		}
		pg, err := records.NewPostgresRepository(db.Pool)
		if err != nil {
			a.Close()
			return nil, err
		}
		repo = pg
		events = records.NewPostgresEventLogger(db.Pool)
		checks = append(checks, httpapi.HealthCheck{Name: "database", Check: db.HealthCheck})
		slog.Info("using postgres records")
	} else {
		slog.Warn("no database configured, records are kept in memory")
	}

	var stores httpapi.DraftStores
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { c.Close() })
		ttl := cfg.Lesson.PositionTTL
		stores = func(userID string) drafts.Store {
			return drafts.NewRedisStore(c.Client, userID, ttl)
		}
		checks = append(checks, httpapi.HealthCheck{Name: "cache", Check: c.HealthCheck})
	} else {
		stores = newMemoryDrafts().get
	}

	hub := httpapi.NewHub()
	svc := records.NewService(repo, catalog,
		records.WithEventLogger(events),
		records.WithNotifier(hub),
	)
	a.handler = httpapi.New(svc, hub,
		httpapi.WithDrafts(stores),
		httpapi.WithHealthChecks(checks...),
	).Handler()
	return a, nil
}

// memoryDrafts hands each learner their own in-memory draft store.
type memoryDrafts struct {
	mu     sync.Mutex
	stores map[string]*drafts.MemoryStore
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{stores: make(map[string]*drafts.MemoryStore)}
}

func (m *memoryDrafts) get(userID string) drafts.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[userID]
	if !ok {
		s = drafts.NewMemoryStore()
		m.stores[userID] = s
	}
	return s
}
