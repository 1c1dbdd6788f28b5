package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/deskpulse/internal/app/migrate"
	"github.com/splax/deskpulse/internal/broadcast"
	httpx "github.com/splax/deskpulse/internal/http"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/internal/repository/memory"
	"github.com/splax/deskpulse/internal/repository/postgres"
	"github.com/splax/deskpulse/internal/service/records"
	"github.com/splax/deskpulse/internal/service/workspace"
	"github.com/splax/deskpulse/internal/ws"
	"github.com/splax/deskpulse/pkg/config"
	"github.com/splax/deskpulse/pkg/logger"
)

type stores struct {
	records    repository.RecordStore
	workspaces repository.WorkspaceRepository
	health     func(context.Context) error
	close      func()
}

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer st.close()

	bus, closeBus := openBus(ctx, cfg, log)
	defer closeBus()

	limiter := httpx.NewMemoryRateLimiter(nil)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:      log,
		JWTSecret:   cfg.JWTSecret,
		Workspaces:  workspace.New(st.workspaces, log),
		Records:     records.New(st.records, log),
		Bus:         bus,
		Limiter:     limiter,
		WriteLimit:  cfg.WriteRateLimit,
		WriteWindow: cfg.WriteRateWindow,
		Bridge:      ws.BridgeOptions{InboundInterval: cfg.PresenceFrameRate},
		DBHealth:    st.health,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "store", cfg.StoreBackend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStores(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (stores, error) {
	if strings.EqualFold(cfg.StoreBackend, "memory") {
		recordStore := memory.NewRecordStore()
		log.Warn("using in-memory store; data is lost on restart")
		return stores{
			records:    recordStore,
			workspaces: memory.NewWorkspaceRepository(),
			health:     recordStore.Ping,
			close:      func() {},
		}, nil
	}

	runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		return stores{}, err
	}
	if err := runner.Ping(ctx); err != nil {
		_ = runner.Close()
		return stores{}, err
	}
	if err := runner.Ensure(ctx); err != nil {
		_ = runner.Close()
		return stores{}, err
	}
	if err := runner.Close(); err != nil {
		log.Warn("closing migration runner failed", "error", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	repo := postgres.New(pool)
	return stores{
		records:    repo,
		workspaces: repo,
		health:     repo.Ping,
		close:      pool.Close,
	}, nil
}

func openBus(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (broadcast.Bus, func()) {
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisBus, err := broadcast.NewRedisBus(ctx, addr, cfg.RedisPassword, cfg.RedisDB, cfg.PresenceBuffer, log)
		if err == nil {
			log.Info("presence bus on redis", "addr", addr)
			return redisBus, func() { _ = redisBus.Close() }
		}
		log.Warn("redis presence bus unavailable, using in-process hub", "error", err)
	}
	hub := broadcast.NewHub(cfg.PresenceBuffer)
	return hub, hub.Stop
}
