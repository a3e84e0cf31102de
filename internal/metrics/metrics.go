// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardapio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardapio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	orderSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardapio",
			Subsystem: "orders",
			Name:      "submissions_total",
			Help:      "Order submissions by final state.",
		},
		[]string{"outcome"},
	)

	orderStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardapio",
			Subsystem: "orders",
			Name:      "step_duration_seconds",
			Help:      "Duration of remote order writes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"step"},
	)

	orphansDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardapio",
			Subsystem: "orders",
			Name:      "orphans_deleted_total",
			Help:      "Orders without items deleted by compensation or reconciliation.",
		},
	)

	menuCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardapio",
			Subsystem: "menu",
			Name:      "cache_lookups_total",
			Help:      "Menu cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		orderSubmissions,
		orderStepDuration,
		orphansDeleted,
		menuCacheLookups,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordSubmission counts a finished order submission.
func RecordSubmission(outcome string) {
	orderSubmissions.WithLabelValues(outcome).Inc()
}

// ObserveOrderStep records how long a remote order write took.
func ObserveOrderStep(step string, d time.Duration) {
	orderStepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordOrphansDeleted counts deleted orphaned orders.
func RecordOrphansDeleted(n int) {
	orphansDeleted.Add(float64(n))
}

// RecordMenuCache counts a cache lookup; result is "hit", "miss" or "error".
func RecordMenuCache(result string) {
	menuCacheLookups.WithLabelValues(result).Inc()
}
