// Package metrics provides Prometheus instrumentation for the gateway's
// HTTP surface and process. Scoring metrics live with the scoring package.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudgate",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429.",
	})

	// ModelLoaded is 1 while a classifier is loaded.
	ModelLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fraudgate",
			Name:      "model_loaded",
			Help:      "1 if a classifier is loaded, labelled by model type.",
		},
		[]string{"model_type"},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
	// HeapInUseBytes tracks heap bytes in use.
	HeapInUseBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "heap_inuse_bytes",
		Help: "Heap bytes in use.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimitedTotal,
		ModelLoaded,
		GoroutineCount,
		HeapInUseBytes,
	)
}

// SetModelLoaded records which classifier is serving. An empty modelType
// means nothing is loaded.
func SetModelLoaded(modelType string) {
	ModelLoaded.Reset()
	if modelType == "" {
		ModelLoaded.WithLabelValues("none").Set(0)
		return
	}
	ModelLoaded.WithLabelValues(modelType).Set(1)
}

// StartRuntimeCollector periodically samples goroutine and heap stats into
// Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartRuntimeCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	sample := func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		GoroutineCount.Set(float64(runtime.NumGoroutine()))
		HeapInUseBytes.Set(float64(ms.HeapInuse))
	}
	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := routePath(c)
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// routePath uses the route pattern, not the raw path, to keep label
// cardinality bounded.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
