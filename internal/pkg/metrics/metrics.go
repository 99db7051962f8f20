package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Upstream call outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeGraphQLError = "graphql_error"
	OutcomeHTTPError    = "http_error"
	OutcomeTransport    = "transport_error"
	OutcomeBadResponse  = "bad_response"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "departuretime",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "departuretime",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "departuretime",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Journey planner metrics
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "departuretime",
		Subsystem: "entur",
		Name:      "requests_total",
		Help:      "Total requests sent to the JourneyPlanner GraphQL API",
	}, []string{"outcome"})

	UpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "departuretime",
		Subsystem: "entur",
		Name:      "request_duration_seconds",
		Help:      "JourneyPlanner GraphQL API latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	DeparturesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "departuretime",
		Subsystem: "entur",
		Name:      "departures_returned",
		Help:      "Number of estimated calls returned per query",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
	})

	DateReformatted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "departuretime",
		Subsystem: "query",
		Name:      "date_reformatted_total",
		Help:      "Queries whose date had to be reparsed before forwarding",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// route pattern keeps stop and line ids out of the label set
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
