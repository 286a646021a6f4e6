package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector manages Prometheus metrics for the service
type MetricsCollector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	serviceInfo         *prometheus.GaugeVec

	// Generation pipeline metrics
	GenerationCalls    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	PostsPersisted     *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector for a service
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	// Sanitize service name for Prometheus (replace hyphens with underscores)
	sanitized := strings.ReplaceAll(serviceName, "-", "_")

	mc := &MetricsCollector{serviceName: sanitized}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: mc.serviceName + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    mc.serviceName + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	mc.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: mc.serviceName + "_service_info",
			Help: "Service information",
		},
		[]string{"version", "commit"},
	)

	mc.GenerationCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: mc.serviceName + "_generation_calls_total",
			Help: "Total content generation calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	mc.GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    mc.serviceName + "_generation_duration_seconds",
			Help:    "Content generation call duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)

	mc.PostsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: mc.serviceName + "_posts_persisted_total",
			Help: "Posts persisted by posting mode",
		},
		[]string{"mode"},
	)

	prometheus.MustRegister(mc.httpRequestsTotal)
	prometheus.MustRegister(mc.httpRequestDuration)
	prometheus.MustRegister(mc.serviceInfo)
	prometheus.MustRegister(mc.GenerationCalls)
	prometheus.MustRegister(mc.GenerationDuration)
	prometheus.MustRegister(mc.PostsPersisted)

	mc.serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// MetricsMiddleware returns middleware that collects HTTP metrics
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
