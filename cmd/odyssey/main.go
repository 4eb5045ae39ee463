package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	needRedis := cfg.StoreBackend == app.BackendPostgres || cfg.ReplenishMode == app.ReplenishQueue || cfg.AlertMode == app.AlertQueue
	var (
		dbpool      *pgxpool.Pool
		redisClient *redis.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.StoreBackend == app.BackendPostgres {
		g.Go(func() error {
			pool, err := db.New(gctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
			dbpool = pool
			return err
		})
	}
	if needRedis {
		g.Go(func() error {
			client, err := cache.New(gctx, cfg.RedisAddr)
			if err != nil && cfg.ReplenishMode != app.ReplenishQueue && cfg.AlertMode != app.AlertQueue {
				logger.Warn("redis unavailable, replenishment runs without a cluster lease", slog.Any("error", err))
				return nil
			}
			redisClient = client
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("connect backends", slog.Any("error", err))
		os.Exit(1)
	}
	if dbpool != nil {
		defer dbpool.Close()
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var backend app.Backend
	if dbpool != nil {
		backend = app.PostgresBackend(dbpool)
	} else {
		logger.Warn("using in-memory store, data is lost on restart")
		backend = app.MemoryBackend(memory.New())
	}

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	var queue *jobs.Client
	if cfg.ReplenishMode == app.ReplenishQueue || cfg.AlertMode == app.AlertQueue {
		queue, err = jobs.NewClient(redisOpts, logger, cfg.ReplenishUniqueFor)
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
	}

	var notifier notify.Notifier
	if cfg.AlertMode == app.AlertQueue {
		notifier = queue
	}
	var locker replenishment.Locker
	if redisClient != nil {
		locker = replenishment.NewRedisLocker(redisClient)
	}

	container := app.NewContainer(backend, app.ContainerConfig{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Notifier: notifier,
		Locker:   locker,
	})

	var dispatcher *replenishment.LocalDispatcher
	switch cfg.ReplenishMode {
	case app.ReplenishQueue:
		container.Inventory.SetTrigger(queue)
	default:
		dispatcher = container.UseLocalReplenishment(cfg.ReplenishTimeout)
		go func() {
			if err := container.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("replenishment scheduler", slog.Any("error", err))
			}
		}()
	}

	params := container.RouterParams(cfg, metrics)
	if redisClient != nil {
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		params.JobHandler = jobs.NewHandler(inspector, logger)
	}
	router := app.NewRouter(params)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("backend", cfg.StoreBackend),
			slog.String("replenish_mode", cfg.ReplenishMode),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
