package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/airhawk/common/middleware"
	"github.com/telhawk-systems/airhawk/detector/internal/handlers"
	"github.com/telhawk-systems/airhawk/detector/internal/metrics"
)

// Routes is the subset of handlers.Handler the router needs.
type Routes interface {
	HealthCheck(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
	ListLogs(w http.ResponseWriter, r *http.Request)
	LedgerLogs(w http.ResponseWriter, r *http.Request)
	HybridLogs(w http.ResponseWriter, r *http.Request)
	Blocklist(w http.ResponseWriter, r *http.Request)
	CheckMAC(w http.ResponseWriter, r *http.Request)
	BlockMAC(w http.ResponseWriter, r *http.Request)
	UnblockMAC(w http.ResponseWriter, r *http.Request)
	MACStats(w http.ResponseWriter, r *http.Request)
	PipelineStatus(w http.ResponseWriter, r *http.Request)
}

var _ Routes = (*handlers.Handler)(nil)

// NewRouter constructs a ServeMux with the reporting API registered.
func NewRouter(h Routes, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Logs
	handle(mux, "GET /api/v1/logs", h.ListLogs)
	handle(mux, "GET /api/v1/logs/ledger", h.LedgerLogs)
	handle(mux, "GET /api/v1/logs/hybrid", h.HybridLogs)

	// Blocklist
	handle(mux, "GET /api/v1/blocklist", h.Blocklist)
	handle(mux, "GET /api/v1/blocklist/{mac}", h.CheckMAC)
	handle(mux, "POST /api/v1/blocklist/{mac}", h.BlockMAC)
	handle(mux, "DELETE /api/v1/blocklist/{mac}", h.UnblockMAC)

	handle(mux, "GET /api/v1/stats/{mac}", h.MACStats)
	handle(mux, "GET /api/v1/pipeline", h.PipelineStatus)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recover(logger),
	)
}

func handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, fn))
}

// instrument counts requests per route pattern, so path values do not
// become label values.
func instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
