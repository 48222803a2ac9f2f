// Package api serves the HTTP JSON interface: catalog queries, single-instant
// positions, trajectories, look angles, pass predictions and the web map
// client's predict_path contract.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpaludi/SatelliteTraker/internal/auth"
	"github.com/fpaludi/SatelliteTraker/internal/cache"
	"github.com/fpaludi/SatelliteTraker/internal/health"
	"github.com/fpaludi/SatelliteTraker/internal/httputil"
	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/passes"
	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
)

const tracerName = "github.com/fpaludi/SatelliteTraker/internal/api"

// Config holds HTTP server and request limit settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Auth         auth.Config
	TrustProxy   bool // take client addresses from proxy headers in logs

	MaxSamples  int           // per trajectory request
	DefaultStep time.Duration // trajectory step when none is given
	MaxPassDays int           // pass prediction horizon limit
	ResponseTTL time.Duration // response cache entry lifetime
}

// Deps are the services the handlers use. Source, Responses, Stream and
// Ready are optional.
type Deps struct {
	Store      *tle.Store
	Source     *tle.Source
	Propagator *propagation.Propagator
	Sampler    *track.Sampler
	Predictor  *passes.Predictor
	Results    *cache.ResultCache
	Responses  ResponseCache
	Stream     StreamHandler
	Ready      map[string]health.Pinger
}

// StreamHandler serves the SSE trajectory stream.
type StreamHandler interface {
	HandlePath(w http.ResponseWriter, r *http.Request)
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

type handlers struct {
	Deps
	config Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewServer creates a configured HTTP server.
func NewServer(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxSamples <= 0 {
		config.MaxSamples = 20000
	}
	if config.DefaultStep <= 0 {
		config.DefaultStep = track.DefaultPathStep
	}
	if config.MaxPassDays <= 0 {
		config.MaxPassDays = 7
	}
	if config.ResponseTTL <= 0 {
		config.ResponseTTL = 10 * time.Minute
	}

	h := &handlers{
		Deps:   deps,
		config: config,
		logger: logger.With("component", "api"),
		tracer: otel.Tracer(tracerName),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store, deps.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("POST /api/v1/catalog/reload", h.reloadCatalog)
	mux.HandleFunc("GET /api/v1/cache/stats", h.cacheStats)
	mux.HandleFunc("GET /api/v1/satellites", h.listSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/elements", h.elements)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/position", h.position)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/path", h.path)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/look", h.look)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/passes", h.passes)
	mux.HandleFunc("GET /api/v1/positions", h.positions)
	mux.HandleFunc("GET /api/v1/predict_path", h.predictPath)
	mux.HandleFunc("POST /api/v1/predict_path", h.predictPath)
	// Path used by existing map clients.
	mux.HandleFunc("GET /api/predict_path/", h.predictPath)
	mux.HandleFunc("POST /api/predict_path/", h.predictPath)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/satellites/{norad_id}/path", deps.Stream.HandlePath)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(config.Auth)(handler)
	handler = loggingMiddleware(logger, config.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

const requestIDHeader = "X-Request-ID"

// requestID keeps a caller-supplied request ID of sane length and mints a
// UUID otherwise.
func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (SSE flushes).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(requestIDHeader, id)
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
				"request_id", id,
			)
		})
	}
}
