package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vtfk/departuretime/internal/adapters/entur"
	"github.com/vtfk/departuretime/internal/adapters/http"
	"github.com/vtfk/departuretime/internal/adapters/valkey"
	"github.com/vtfk/departuretime/internal/core/usecases"
	"github.com/vtfk/departuretime/internal/pkg/config"
	"github.com/vtfk/departuretime/internal/pkg/logging"
	"github.com/vtfk/departuretime/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("departuretime-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Rate-limit storage (optional)
	var cache *valkey.Storage
	if cfg.Valkey.Addr != "" {
		cache, err = valkey.New(cfg.Valkey.Addr, "departuretime:limiter:")
		if err != nil {
			slog.Warn("valkey unavailable, rate limiting in memory", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	loc, err := cfg.Entur.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	source := entur.NewClient(cfg.Entur.JourneyPlannerAPIURL, cfg.Entur.ClientName, nil)
	departureSvc := usecases.NewDepartureService(source, loc, slog.Default())

	deps := &http.Dependencies{
		Departures: departureSvc,
		Cache:      cache,
		Options: http.Options{
			RoutePrefix:     cfg.Server.RoutePrefix,
			RequestTimeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
			RateLimitMax:    cfg.RateLimit.Max,
			RateLimitWindow: time.Duration(cfg.RateLimit.Expiration) * time.Second,
		},
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "Departure Time API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting",
			"addr", addr,
			"journey_planner", cfg.Entur.JourneyPlannerAPIURL,
			"timezone", loc.String(),
		)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
