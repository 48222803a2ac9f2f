package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattrack_propagation_batch_duration_seconds",
			Help:    "Duration of a catalog-wide propagation batch.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"model"},
	)

	propagationSatellitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_propagation_satellites_total",
			Help: "Satellites propagated in catalog batches, by outcome.",
		},
		[]string{"model", "result"},
	)

	propagationWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_propagation_workers_active",
			Help: "Workers in the current propagation batch.",
		},
	)

	trajectorySamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_trajectory_samples_total",
			Help: "Trajectory samples produced.",
		},
	)

	divergenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_propagation_divergence_total",
			Help: "Propagations that failed to converge or hit a decayed orbit.",
		},
		[]string{"model"},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_result_cache_hits_total",
		Help: "Result cache hits.",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_result_cache_misses_total",
		Help: "Result cache misses.",
	})
	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_result_cache_evictions_total",
		Help: "Result cache LRU evictions.",
	})
	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sattrack_result_cache_entries",
		Help: "Entries currently held by the result cache.",
	})

	responseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_response_cache_requests_total",
			Help: "Valkey response cache lookups, by result.",
		},
		[]string{"result"},
	)

	catalogSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sattrack_catalog_satellites",
		Help: "Satellites in the loaded catalog.",
	})
	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sattrack_catalog_age_seconds",
		Help: "Seconds since the catalog was loaded.",
	})
	catalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_catalog_reloads_total",
			Help: "Catalog reload attempts, by result.",
		},
		[]string{"result"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sattrack_stream_connections_active",
		Help: "Open SSE trajectory streams.",
	})
	streamConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_stream_connections_total",
		Help: "SSE trajectory streams opened.",
	})
	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_stream_messages_total",
		Help: "SSE messages sent.",
	})
	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sattrack_stream_bytes_total",
		Help: "SSE bytes written.",
	})
	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_stream_errors_total",
			Help: "SSE stream failures and rejections, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDurationSeconds,
		propagationSatellitesTotal,
		propagationWorkersActive,
		trajectorySamplesTotal,
		divergenceTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		responseCacheTotal,
		catalogSatellites,
		catalogAgeSeconds,
		catalogReloadsTotal,
		streamsActive,
		streamConnectionsTotal,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one catalog batch.
func RecordPropagation(model string, d time.Duration, success, failed int) {
	propagationDurationSeconds.WithLabelValues(model).Observe(d.Seconds())
	propagationSatellitesTotal.WithLabelValues(model, "success").Add(float64(success))
	propagationSatellitesTotal.WithLabelValues(model, "error").Add(float64(failed))
}

func SetPropagationWorkersActive(n int) { propagationWorkersActive.Set(float64(n)) }

func IncDivergence(model string) { divergenceTotal.WithLabelValues(model).Inc() }

func AddTrajectorySamples(n int) { trajectorySamplesTotal.Add(float64(n)) }

func IncCacheHits() { cacheHitsTotal.Inc() }
func IncCacheMisses() { cacheMissesTotal.Inc() }
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }
func IncResponseCache(result string) { responseCacheTotal.WithLabelValues(result).Inc() }

func SetCatalogCount(n int) { catalogSatellites.Set(float64(n)) }
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }
func IncCatalogReload(result string) { catalogReloadsTotal.WithLabelValues(result).Inc() }

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }
func IncStreamConnections() { streamConnectionsTotal.Inc() }
func IncStreamMessages() { streamMessagesTotal.Inc() }
func AddStreamBytes(n int) { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

var exactRoutes = map[string]bool{
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/satellites":     true,
	"/api/v1/positions":      true,
	"/api/v1/predict_path":   true,
	"/api/predict_path/":     true,
	"/api/v1/cache/stats":    true,
	"/api/v1/catalog":        true,
	"/api/v1/catalog/reload": true,
}

// satelliteRoutes are the sub-resources under /api/v1/satellites/{norad_id}/.
var satelliteRoutes = map[string]bool{
	"position": true,
	"path":     true,
	"look":     true,
	"passes":   true,
	"elements": true,
}

// normalizeRoute maps a request path to a bounded label set so per-satellite
// URLs do not explode metric cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}

	prefix := "/api/v1/satellites/"
	if rest, ok := strings.CutPrefix(path, "/api/v1/stream/satellites/"); ok {
		if id, sub, ok := strings.Cut(rest, "/"); ok && isDigits(id) && sub == "path" {
			return "/api/v1/stream/satellites/{norad_id}/path"
		}
		return "other"
	}
	if rest, ok := strings.CutPrefix(path, prefix); ok {
		if id, sub, ok := strings.Cut(rest, "/"); ok && isDigits(id) && satelliteRoutes[sub] {
			return prefix + "{norad_id}/" + sub
		}
	}
	return "other"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
