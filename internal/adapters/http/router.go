package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/vtfk/departuretime/internal/pkg/metrics"
)

// SetupRoutes registers the departure, GraphQL and operational routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	opts := deps.Options.withDefaults()

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Every request costs a call against the Entur client quota.
	limiterCfg := limiter.Config{
		Max:        opts.RateLimitMax,
		Expiration: opts.RateLimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}
	if deps.Cache != nil {
		limiterCfg.Storage = deps.Cache
	}
	app.Use(limiter.New(limiterCfg))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(CachingMiddleware(opts.RoutePrefix))

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	departures := timeout.NewWithContext(DepartureTimeHandler(deps), opts.RequestTimeout)
	api := app.Group(opts.RoutePrefix)
	api.Get("/departureTime/:stopId/:date/:lineId", departures)
	api.Post("/departureTime/:stopId/:date/:lineId", departures)

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), opts.RequestTimeout))

	SetupDocs(app)
}
