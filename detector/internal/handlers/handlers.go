// Package handlers implements the detector's reporting API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/airhawk/common/httputil"
	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/detector/internal/ledger"
	"github.com/telhawk-systems/airhawk/detector/internal/model"
	"github.com/telhawk-systems/airhawk/detector/internal/pipeline"
	"github.com/telhawk-systems/airhawk/detector/internal/stats"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/gateway"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
	hybridPreview   = 10
	ledgerPreview   = 20
)

// Enforcer is the blocklist surface of the enforcer client.
type Enforcer interface {
	Block(ctx context.Context, mac string) (gateway.BlockResult, error)
	Unblock(ctx context.Context, mac string) (gateway.UnblockResult, error)
	Check(ctx context.Context, mac string) (bool, error)
	List(ctx context.Context) ([]macaddr.MAC, error)
}

// LogReader reads the local log store.
type LogReader interface {
	Recent(ctx context.Context, limit int) ([]model.LogEvent, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// StatsReader reads per-MAC sighting statistics.
type StatsReader interface {
	Get(ctx context.Context, mac macaddr.MAC) (*stats.Stats, error)
}

// PipelineStats exposes pipeline counters.
type PipelineStats interface {
	Stats() pipeline.Stats
}

// RecorderStats exposes ledger recorder counters.
type RecorderStats interface {
	Stats() ledger.RecorderStats
}

// Config holds the handler dependencies. Enforcer and Logs are required;
// a nil Stats disables /api/v1/stats and a nil Ledger behaves as disabled.
// Broker, when set, is reported by /readyz.
type Config struct {
	Enforcer  Enforcer
	Logs      LogReader
	StoreKind string
	Ledger    ledger.Client
	Recorder  RecorderStats
	Stats     StatsReader
	Pipeline  PipelineStats
	Broker    messaging.Client
	Logger    *slog.Logger
}

type Handler struct {
	cfg     Config
	logger  *logging.Logger
	started time.Time
}

func NewHandler(cfg Config) *Handler {
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.NoOp{}
	}
	return &Handler{cfg: cfg, logger: logging.FromSlog(cfg.Logger), started: time.Now()}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ComponentStatus is one entry of the readiness report.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadyResponse is the body of GET /readyz.
type ReadyResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// Ready handles GET /readyz. Only the local store gates readiness; an
// unreachable enforcer or ledger reports "degraded" since detection keeps
// running without them.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Components: map[string]ComponentStatus{}}
	status := http.StatusOK

	if err := h.cfg.Logs.Ping(ctx); err != nil {
		resp.Components["local_store"] = ComponentStatus{Status: "down", Error: err.Error()}
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	} else {
		resp.Components["local_store"] = ComponentStatus{Status: "up"}
	}

	if _, err := h.cfg.Enforcer.List(ctx); err != nil {
		resp.Components["enforcer"] = ComponentStatus{Status: "down", Error: err.Error()}
		if status == http.StatusOK {
			resp.Status = "degraded"
		}
	} else {
		resp.Components["enforcer"] = ComponentStatus{Status: "up"}
	}

	if _, err := h.cfg.Ledger.TotalCount(ctx); errors.Is(err, ledger.ErrDisabled) {
		resp.Components["ledger"] = ComponentStatus{Status: "disabled"}
	} else if err != nil {
		resp.Components["ledger"] = ComponentStatus{Status: "down", Error: err.Error()}
		if status == http.StatusOK {
			resp.Status = "degraded"
		}
	} else {
		resp.Components["ledger"] = ComponentStatus{Status: "up"}
	}

	if h.cfg.Broker != nil {
		if health := messaging.CheckClientHealth(h.cfg.Broker); health.Connected {
			resp.Components["broker"] = ComponentStatus{Status: "up"}
		} else {
			resp.Components["broker"] = ComponentStatus{Status: "down", Error: health.Error}
			if status == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}

	httputil.WriteJSON(w, status, resp)
}

// LogsResponse is the body of GET /api/v1/logs.
type LogsResponse struct {
	Logs  []model.LogEvent `json:"logs"`
	Count int              `json:"count"`
	Total int64            `json:"total"`
	Store string           `json:"store,omitempty"`
}

// ListLogs handles GET /api/v1/logs?limit=N, newest first.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := httputil.ParseLimit(r, defaultLogLimit, maxLogLimit)

	logs, err := h.cfg.Logs.Recent(r.Context(), limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	total, err := h.cfg.Logs.Count(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.LogEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, LogsResponse{
		Logs:  logs,
		Count: len(logs),
		Total: total,
		Store: h.cfg.StoreKind,
	})
}

// LedgerResponse is the body of GET /api/v1/logs/ledger.
type LedgerResponse struct {
	Total  int64          `json:"total_ledger_logs"`
	Recent []ledger.Entry `json:"recent"`
}

// LedgerLogs handles GET /api/v1/logs/ledger.
func (h *Handler) LedgerLogs(w http.ResponseWriter, r *http.Request) {
	total, err := h.cfg.Ledger.TotalCount(r.Context())
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	limit := httputil.ParseLimit(r, ledgerPreview, maxLogLimit)
	recent, err := h.cfg.Ledger.Recent(r.Context(), limit)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	if recent == nil {
		recent = []ledger.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, LedgerResponse{Total: total, Recent: recent})
}

// HybridResponse is the body of GET /api/v1/logs/hybrid.
type HybridResponse struct {
	Mode         string           `json:"mode"`
	LocalLogs    int64            `json:"local_logs"`
	LedgerLogs   *int64           `json:"ledger_logs"`
	LedgerStatus string           `json:"ledger_status"`
	RecentLocal  []model.LogEvent `json:"recent_local"`
}

// HybridLogs handles GET /api/v1/logs/hybrid. A ledger failure degrades the
// response instead of failing it.
func (h *Handler) HybridLogs(w http.ResponseWriter, r *http.Request) {
	local, err := h.cfg.Logs.Count(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	recent, err := h.cfg.Logs.Recent(r.Context(), hybridPreview)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if recent == nil {
		recent = []model.LogEvent{}
	}

	resp := HybridResponse{Mode: "hybrid", LocalLogs: local, RecentLocal: recent, LedgerStatus: "ok"}
	total, err := h.cfg.Ledger.TotalCount(r.Context())
	switch {
	case errors.Is(err, ledger.ErrDisabled):
		resp.LedgerStatus = "disabled"
	case err != nil:
		resp.LedgerStatus = "unavailable"
		h.logger.WarnContext(r.Context(), "Ledger count failed", logging.Error(err), logging.ErrorClass(logging.ClassLedger))
	default:
		resp.LedgerLogs = &total
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// BlocklistResponse is the body of GET /api/v1/blocklist.
type BlocklistResponse struct {
	BlockedMACs []macaddr.MAC `json:"blocked_macs"`
	Total       int           `json:"total"`
}

// Blocklist handles GET /api/v1/blocklist.
func (h *Handler) Blocklist(w http.ResponseWriter, r *http.Request) {
	macs, err := h.cfg.Enforcer.List(r.Context())
	if err != nil {
		h.enforcerError(w, r, err)
		return
	}
	if macs == nil {
		macs = []macaddr.MAC{}
	}
	httputil.WriteJSON(w, http.StatusOK, BlocklistResponse{BlockedMACs: macs, Total: len(macs)})
}

// BlockEntryResponse is the body of the /api/v1/blocklist/{mac} endpoints.
type BlockEntryResponse struct {
	MAC     macaddr.MAC `json:"mac"`
	Blocked bool        `json:"blocked"`
	Status  string      `json:"status,omitempty"`
	Total   int         `json:"total_blocked,omitempty"`
}

// CheckMAC handles GET /api/v1/blocklist/{mac}
func (h *Handler) CheckMAC(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.pathMAC(w, r)
	if !ok {
		return
	}
	blocked, err := h.cfg.Enforcer.Check(r.Context(), mac.String())
	if err != nil {
		h.enforcerError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BlockEntryResponse{MAC: mac, Blocked: blocked})
}

// BlockMAC handles POST /api/v1/blocklist/{mac}. A new entry answers 201,
// an existing one 200 with status "already_blocked".
func (h *Handler) BlockMAC(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.pathMAC(w, r)
	if !ok {
		return
	}
	res, err := h.cfg.Enforcer.Block(r.Context(), mac.String())
	if err != nil {
		h.enforcerError(w, r, err)
		return
	}
	if res.AlreadyBlocked {
		httputil.WriteJSON(w, http.StatusOK, BlockEntryResponse{
			MAC: mac, Blocked: true, Status: "already_blocked", Total: res.Total,
		})
		return
	}
	h.logger.InfoContext(r.Context(), "Manual block", logging.MAC(mac.String()))
	httputil.WriteJSON(w, http.StatusCreated, BlockEntryResponse{MAC: mac, Blocked: true, Status: "blocked"})
}

// UnblockMAC handles DELETE /api/v1/blocklist/{mac}.
func (h *Handler) UnblockMAC(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.pathMAC(w, r)
	if !ok {
		return
	}
	res, err := h.cfg.Enforcer.Unblock(r.Context(), mac.String())
	if err != nil {
		h.enforcerError(w, r, err)
		return
	}
	status := "not_in_blocklist"
	if res.Removed {
		status = "removed"
		h.logger.InfoContext(r.Context(), "Manual unblock", logging.MAC(mac.String()))
	}
	httputil.WriteJSON(w, http.StatusOK, BlockEntryResponse{MAC: mac, Status: status})
}

// MACStats handles GET /api/v1/stats/{mac}.
func (h *Handler) MACStats(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.pathMAC(w, r)
	if !ok {
		return
	}
	if h.cfg.Stats == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "stats_disabled", "sighting statistics are disabled")
		return
	}
	st, err := h.cfg.Stats.Get(r.Context(), mac)
	if errors.Is(err, stats.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "no sightings recorded for "+mac.String())
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Stats lookup failed", logging.MAC(mac.String()), logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "stats_unavailable", "statistics store unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// PipelineResponse is the body of GET /api/v1/pipeline.
type PipelineResponse struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Pipeline      *pipeline.Stats       `json:"pipeline,omitempty"`
	Ledger        *ledger.RecorderStats `json:"ledger,omitempty"`
}

// PipelineStatus handles GET /api/v1/pipeline.
func (h *Handler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	resp := PipelineResponse{UptimeSeconds: int64(time.Since(h.started).Seconds())}
	if h.cfg.Pipeline != nil {
		s := h.cfg.Pipeline.Stats()
		resp.Pipeline = &s
	}
	if h.cfg.Recorder != nil {
		s := h.cfg.Recorder.Stats()
		resp.Ledger = &s
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) pathMAC(w http.ResponseWriter, r *http.Request) (macaddr.MAC, bool) {
	mac, err := macaddr.Parse(r.PathValue("mac"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_mac", err.Error())
		return "", false
	}
	return mac, true
}

func (h *Handler) enforcerError(w http.ResponseWriter, r *http.Request, err error) {
	var ferr *macaddr.FormatError
	switch {
	case errors.As(err, &ferr):
		httputil.WriteError(w, http.StatusBadRequest, "invalid_mac", ferr.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		h.logger.WarnContext(r.Context(), "Enforcer unavailable",
			logging.Error(err), logging.ErrorClass(logging.ClassUnavailable))
		httputil.WriteError(w, http.StatusServiceUnavailable, "enforcer_unavailable", "enforcement unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "Enforcer call failed", logging.Error(err))
		httputil.WriteError(w, http.StatusBadGateway, "enforcer_error", err.Error())
	}
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "Local store read failed",
		logging.Error(err), logging.ErrorClass(logging.ClassStore))
	httputil.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "local log store unavailable")
}

func (h *Handler) ledgerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ledger.ErrDisabled) {
		httputil.WriteError(w, http.StatusServiceUnavailable, "ledger_disabled", "ledger is disabled")
		return
	}
	h.logger.WarnContext(r.Context(), "Ledger read failed",
		logging.Error(err), logging.ErrorClass(logging.ClassLedger))
	httputil.WriteError(w, http.StatusServiceUnavailable, "ledger_unavailable", "ledger unavailable")
}
