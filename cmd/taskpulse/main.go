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
	"golang.org/x/sync/errgroup"

	"github.com/taskpulse/taskpulse/internal/app"
	"github.com/taskpulse/taskpulse/internal/chat"
	"github.com/taskpulse/taskpulse/internal/files"
	"github.com/taskpulse/taskpulse/internal/identity"
	"github.com/taskpulse/taskpulse/internal/kpis"
	"github.com/taskpulse/taskpulse/internal/notifications"
	"github.com/taskpulse/taskpulse/internal/observability"
	"github.com/taskpulse/taskpulse/internal/platform/cache"
	"github.com/taskpulse/taskpulse/internal/platform/db"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/reports"
	"github.com/taskpulse/taskpulse/internal/shared"
	"github.com/taskpulse/taskpulse/internal/tasks"
	"github.com/taskpulse/taskpulse/internal/teams"
	"github.com/taskpulse/taskpulse/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	registry := realtime.NewRegistry()
	bridge := realtime.NewBridge(redisClient, cfg.RealtimeChannel, logger)
	dispatcher := realtime.NewDispatcher(registry, logger, metrics, bridge)

	tokens := identity.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, tokens)
	identityHandler := identity.NewHandler(logger, identityService)

	taskRepo := tasks.NewRepository(dbpool)
	taskService := tasks.NewService(taskRepo, dispatcher)
	taskHandler := tasks.NewHandler(taskService)

	notificationRepo := notifications.NewRepository(dbpool)
	notificationService := notifications.NewService(notificationRepo, dispatcher)
	notificationHandler := notifications.NewHandler(notificationService)

	chatRepo := chat.NewRepository(dbpool)
	chatService := chat.NewService(chatRepo, dispatcher)
	chatHandler := chat.NewHandler(chatService)

	teamRepo := teams.NewRepository(dbpool)
	teamService := teams.NewService(teamRepo, dispatcher)
	teamHandler := teams.NewHandler(teamService)

	kpiRepo := kpis.NewRepository(dbpool)
	kpiService := kpis.NewService(kpiRepo, kpis.NewTaskEstimator(dbpool), dispatcher)
	kpiHandler := kpis.NewHandler(kpiService)

	fileRepo := files.NewRepository(dbpool)
	fileService := files.NewService(fileRepo)
	fileHandler := files.NewHandler(fileService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	reportRepo := reports.NewRepository(dbpool)
	reportService := reports.NewService(reportRepo, reports.NewSQLBuilder(dbpool), jobClient, dispatcher, idempotencyStore, logger)
	reportHandler := reports.NewHandler(reportService)

	realtimeHandler := realtime.NewHandler(logger, registry, metrics, chatService, realtime.HandlerConfig{
		OpenJoins:     cfg.RealtimeOpenJoins,
		SessionBuffer: cfg.RealtimeBuffer,
		WriteTimeout:  cfg.RealtimeWriteTimeout,
		Heartbeat:     cfg.RealtimeHeartbeat,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		IdentityHandler:     identityHandler,
		TaskHandler:         taskHandler,
		NotificationHandler: notificationHandler,
		ChatHandler:         chatHandler,
		TeamHandler:         teamHandler,
		KPIHandler:          kpiHandler,
		FileHandler:         fileHandler,
		ReportHandler:       reportHandler,
		RealtimeHandler:     realtimeHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:        cfg.AppAddr,
		Handler:     router,
		ReadTimeout: cfg.AppReadTimeout,
		// The SSE stream outlives any sane write timeout; per-write
		// deadlines are enforced inside the realtime handler instead.
		WriteTimeout: 0,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting bridge", slog.String("channel", cfg.RealtimeChannel))
		if err := bridge.Run(groupCtx, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run", slog.Any("error", err))
		os.Exit(1)
	}
}
