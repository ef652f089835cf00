package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/analysis"
	"github.com/salesdata/backend/internal/api/handlers"
	"github.com/salesdata/backend/internal/cache/redis"
	"github.com/salesdata/backend/internal/events"
	"github.com/salesdata/backend/internal/export"
	"github.com/salesdata/backend/internal/gate"
	"github.com/salesdata/backend/internal/ingestion"
	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/middleware/ratelimit"
	"github.com/salesdata/backend/internal/middleware/security"
	"github.com/salesdata/backend/internal/orchestrator"
	"github.com/salesdata/backend/internal/report"
	"github.com/salesdata/backend/internal/scheduler"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/config"
	appLogger "github.com/salesdata/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Sales Data API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.TTLSec,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	analysisClient := analysis.NewClient(
		cfg.Analysis.APIKey,
		cfg.Analysis.Model,
		cfg.Analysis.Temperature,
		cfg.Analysis.MaxTokens,
		cfg.Analysis.TimeoutSec,
		cfg.Analysis.MaxAttempts,
	)

	bus := events.NewBus()
	processor := ingestion.NewProcessor(sqliteClient, cfg.Pipeline.RejectedDir)
	completionGate := gate.New(sqliteClient, cfg.Pipeline.ExpectedStoreList())
	dispatcher := report.NewDispatcher(cfg.Report)
	exporter := export.NewExporter(sqliteClient, cfg.Export.Dir, cfg.Export.WindowDays)

	orch := orchestrator.New(
		sqliteClient,
		analysisClient,
		dispatcher,
		exporter,
		bus,
		cfg.Pipeline.HistoryDays,
		time.Duration(cfg.Pipeline.RunTakeoverMin)*time.Minute,
	)

	// A finished run rewrites the date's derived tables; cached reads for
	// that date are stale from then on.
	if cacheClient != nil {
		go func() {
			id, ch := bus.Subscribe()
			defer bus.Unsubscribe(id)
			for event := range ch {
				if event.Type != events.RunFinished {
					continue
				}
				if err := cacheClient.InvalidateDate(context.Background(), event.Date); err != nil {
					appLogger.Warn("Cache invalidation failed", zap.String("date", event.Date), zap.Error(err))
				}
			}
		}()
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	fallback, err := scheduler.New(
		sqliteClient,
		orch,
		cfg.Pipeline.Timezone,
		cfg.Pipeline.FallbackHour,
		cfg.Pipeline.FallbackIntervalMin,
	)
	if err != nil {
		appLogger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	fallback.Start(runCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Store-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(limiter.Middleware())

	uploadHandler := handlers.NewUploadHandler(processor, completionGate, orch, bus)
	analyticsHandler := handlers.NewAnalyticsHandler(sqliteClient, cacheClient)
	pipelineHandler := handlers.NewPipelineHandler(sqliteClient, completionGate, orch)
	eventsHandler := handlers.NewEventsHandler(bus)

	api := app.Group("/api/v1")

	api.Post("/uploads", uploadHandler.HandleUpload)

	api.Get("/analytics/:date", analyticsHandler.GetAnalytics)
	api.Get("/summaries/:date", analyticsHandler.GetSummaries)
	api.Get("/insights/:date", analyticsHandler.GetInsights)
	api.Get("/dates", analyticsHandler.GetDates)

	api.Post("/analysis/:date/run", pipelineHandler.TriggerRun)
	api.Get("/analysis/:date", pipelineHandler.GetRun)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/events", websocket.New(eventsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancelRuns()
	fallback.Stop()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
