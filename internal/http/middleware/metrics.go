package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath labels requests that matched no route. Public page servers
// attract scanners, so raw URLs never become label values.
const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatboard_http_requests_total",
		Help: "HTTP requests by surface, route and status.",
	}, []string{"surface", "method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatboard_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"surface", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatboard_http_requests_inflight",
		Help: "Requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatboard_http_response_size_bytes",
		Help:    "Response body size.",
		Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
	}, []string{"surface", "route"})

	throttled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatboard_http_throttled_total",
		Help: "Requests rejected by the per-address throttle.",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, throttled)
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}

// surfaceOf splits traffic into the JSON API under apiPrefix, the tracked
// HTML pages, and operational endpoints.
func surfaceOf(route, apiPrefix string) string {
	switch {
	case route == unmatchedPath:
		return "other"
	case route == "/health" || route == "/metrics" || strings.HasPrefix(route, "/swagger"):
		return "ops"
	case apiPrefix != "" && apiPrefix != "/" && strings.HasPrefix(route, apiPrefix):
		return "api"
	default:
		return "page"
	}
}

// Metrics instruments every request. apiPrefix is the mount point of the JSON
// API and only feeds the surface label.
func Metrics(apiPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeLabel(c)
		surface := surfaceOf(route, apiPrefix)
		httpReqs.WithLabelValues(surface, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(surface, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpRespSize.WithLabelValues(surface, route).Observe(float64(n))
		}
	}
}
