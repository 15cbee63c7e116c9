package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crewd/crewd/internal/application/jobs"
	"github.com/crewd/crewd/internal/application/workers"
	"github.com/crewd/crewd/internal/application/workflow"
	"github.com/crewd/crewd/internal/config"
	eventsmemory "github.com/crewd/crewd/pkg/adapters/events/memory"
	eventsredis "github.com/crewd/crewd/pkg/adapters/events/redis"
	"github.com/crewd/crewd/pkg/adapters/metrics/prometheus"
	"github.com/crewd/crewd/pkg/adapters/models"
	"github.com/crewd/crewd/pkg/adapters/permissions"
	storagememory "github.com/crewd/crewd/pkg/adapters/storage/memory"
	storageredis "github.com/crewd/crewd/pkg/adapters/storage/redis"
	"github.com/crewd/crewd/pkg/adapters/transport/anthropic"
	"github.com/crewd/crewd/pkg/api/grpc"
	"github.com/crewd/crewd/pkg/api/http"
	"github.com/crewd/crewd/pkg/api/websocket"
	"github.com/crewd/crewd/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting crewd orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Load the profile/workflow catalog
	catalog, err := config.LoadCatalog(cfg.ProfilesFile)
	if err != nil {
		logger.Fatal("failed to load profile catalog", zap.Error(err))
	}
	logger.Info("profile catalog loaded",
		zap.Int("profiles", len(catalog.Profiles)),
		zap.Int("workflows", len(catalog.Workflows)))

	// Redis is optional: without it the event bus and override store run
	// in memory.
	var (
		redisClient *goredis.Client
		eventBus    ports.EventBus
		overrides   ports.OverrideStore
	)
	if cfg.Redis.Enabled() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus, err = eventsredis.NewStreamsEventBus(
			redisClient,
			"crewd-events",
			fmt.Sprintf("crewd-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
		overrides = storageredis.NewOverrideStore(redisClient, cfg.Redis.OverrideTTL, logger)
	} else {
		logger.Info("no Redis configured, using in-memory event bus and override store")
		eventBus = eventsmemory.NewEventBus()
		overrides = storagememory.NewOverrideStore()
	}

	// Initialize adapters
	transport, err := anthropic.NewTransport(anthropic.Config{
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to create transport", zap.Error(err))
	}

	resolver := models.NewCatalogResolver(models.DefaultCatalog())
	translator := permissions.NewTranslator()
	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	jobRegistry := jobs.NewRegistry(eventBus, metricsCollector, logger,
		jobs.WithRetention(cfg.Jobs.Retention),
		jobs.WithMaxJobs(cfg.Jobs.MaxJobs))

	workerRegistry := workers.NewRegistry(eventBus, logger)
	spawner := workers.NewSpawner(workers.SpawnerConfig{
		Registry:     workerRegistry,
		Transport:    transport,
		Resolver:     resolver,
		Permissions:  translator,
		Overrides:    overrides,
		Metrics:      metricsCollector,
		Logger:       logger,
		SpawnTimeout: cfg.Workers.SpawnTimeout,
		RepoContext:  cfg.Workers.RepoContext,
	})
	dispatcher := workers.NewDispatcher(workerRegistry, metricsCollector, logger)

	manager := workers.NewManager(workers.ManagerConfig{
		Registry:   workerRegistry,
		Spawner:    spawner,
		Dispatcher: dispatcher,
		Jobs:       jobRegistry,
		Profiles:   catalog.Profiles,
		Logger:     logger,
	})

	workflowEngine := workflow.NewEngine(metricsCollector, logger)
	for _, def := range catalog.Workflows {
		if err := workflowEngine.Register(def); err != nil {
			logger.Fatal("failed to register workflow",
				zap.String("workflow_id", def.ID),
				zap.Error(err))
		}
	}

	monitor := workers.NewStatusMonitor(workerRegistry, metricsCollector, cfg.Workers.MonitorInterval, logger)
	monitor.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Manager:   manager,
		Workflows: workflowEngine,
		Limits: workflow.Limits{
			MaxSteps:       cfg.Workflow.MaxSteps,
			MaxTaskChars:   cfg.Workflow.MaxTaskChars,
			MaxCarryChars:  cfg.Workflow.MaxCarryChars,
			PerStepTimeout: cfg.Workflow.StepTimeout,
		},
		Logger: logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:    cfg.GRPCPort,
		Manager: manager,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("crewd orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("profiles", len(catalog.Profiles)))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	monitor.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	manager.StopAll()

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("crewd orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
