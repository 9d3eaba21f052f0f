package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
	"github.com/kirillkom/finvault/internal/observability/metrics"
)

const (
	maxRequestBodyBytes     = 1 << 20
	defaultBackpressureWait = 250 * time.Millisecond
)

type RouterOptions struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	retrieval ports.HybridRetriever
	research  ports.ResearchService
	history   ports.QueryHistoryService
	probes    []HealthProbe
	metrics   *metrics.HTTPServerMetrics
	opts      RouterOptions
	logger    *slog.Logger
}

// NewRouter builds the API router. Any dependency may be nil; its routes then
// answer 503.
func NewRouter(
	retrieval ports.HybridRetriever,
	research ports.ResearchService,
	history ports.QueryHistoryService,
	probes []HealthProbe,
	httpMetrics *metrics.HTTPServerMetrics,
	opts RouterOptions,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = defaultBackpressureWait
	}
	return &Router{
		retrieval: retrieval,
		research:  research,
		history:   history,
		probes:    probes,
		metrics:   httpMetrics,
		opts:      opts,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(accessLogMiddleware(rt.logger))
	r.Use(middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(chiRoutePattern, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
		})
		v1.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
		})
		v1.Post("/retrieval/query", rt.queryRetrieval)
		v1.Post("/research/query", rt.queryResearch)
		v1.Get("/research/history", rt.listHistory)
		v1.Delete("/research/history", rt.clearHistory)
	})
	return r
}

func chiRoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	rt.logger.Log(r.Context(), level, "http_handler_failed",
		"request_id", requestIDFromContext(r.Context()),
		"operation", op,
		"status", status,
		"error_kind", domain.ErrorKind(err),
		"error", err,
	)
	writeError(w, status, publicErrorMessage(err, status))
}
