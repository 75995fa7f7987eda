package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/yongjie-lim/carpark-availability/internal/api/http"
	"github.com/yongjie-lim/carpark-availability/internal/cache"
	"github.com/yongjie-lim/carpark-availability/internal/carpark"
	"github.com/yongjie-lim/carpark-availability/internal/config"
	"github.com/yongjie-lim/carpark-availability/internal/datagovsg"
	"github.com/yongjie-lim/carpark-availability/internal/hdbcsv"
	"github.com/yongjie-lim/carpark-availability/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logging.NewLogger("carparkd")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := datagovsg.NewClient(httpClient, datagovsg.Options{
		AvailabilityURL: cfg.AvailabilityURL,
		DatastoreURL:    cfg.DatastoreURL,
		ResourceID:      cfg.CarparkInfoResourceID,
		PageSize:        cfg.DatastorePageSize,
	}, zlog)

	var metadataSource carpark.MetadataSource = client
	if cfg.MetadataSource == config.MetadataSourceCSV {
		metadataSource = hdbcsv.New(cfg.MetadataCSVPath, zlog)
	}

	carparkCache := cache.New(metadataSource, client, cfg.FreshnessThreshold, zlog)

	// The cache is rebuilt from scratch on every startup; a failed first
	// load is unrecoverable here.
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := carparkCache.Reload(loadCtx); err != nil {
		cancelLoad()
		zlog.Fatal("initial carpark load failed", zap.Error(err))
	}
	cancelLoad()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "carpark-availability",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		carparks, fetchedAt, loaded := carparkCache.SnapshotInfo()
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "carpark-availability",
			"loaded":    loaded,
			"carparks":  carparks,
			"fetchedAt": fetchedAt,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, carparkCache)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}
