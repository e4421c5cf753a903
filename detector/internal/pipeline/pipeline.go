// Package pipeline runs each captured deauthentication through dedup,
// logging, policy and enforcement. No stage failure escapes Process or
// Handle; every outcome is reported in the Result and the logs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/detector/internal/capture"
	"github.com/telhawk-systems/airhawk/detector/internal/metrics"
	"github.com/telhawk-systems/airhawk/detector/internal/model"
	"github.com/telhawk-systems/airhawk/detector/internal/policy"
	"github.com/telhawk-systems/airhawk/detector/internal/stats"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/gateway"
)

// Gateway is the part of the enforcer client the pipeline uses.
type Gateway interface {
	Check(ctx context.Context, mac string) (bool, error)
	Block(ctx context.Context, mac string) (gateway.BlockResult, error)
}

// LogStore receives every event that passes dedup, synchronously.
type LogStore interface {
	Insert(ctx context.Context, ev model.LogEvent) (string, error)
}

// LedgerSink accepts events for asynchronous ledger appends.
type LedgerSink interface {
	Submit(ev model.LogEvent) bool
}

// SightingRecorder receives per-MAC statistics. Optional.
type SightingRecorder interface {
	Record(s stats.Sighting)
}

// Deps are the pipeline's collaborators. Gateway and Store are required.
type Deps struct {
	Gateway Gateway
	Store   LogStore
	Ledger  LedgerSink
	Stats   SightingRecorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// Stage is the last stage an event reached.
type Stage string

const (
	StageDropped   Stage = "dropped"
	StageDuplicate Stage = "duplicate"
	StageLogged    Stage = "logged"
	StageEscalated Stage = "escalated"
)

// Block outcomes reported in Result.BlockOutcome.
const (
	BlockOutcomeBlocked        = "blocked"
	BlockOutcomeAlreadyBlocked = "already_blocked"
	BlockOutcomeUnavailable    = "unavailable"
	BlockOutcomeFailed         = "failed"
)

// Result describes what happened to one frame or event.
type Result struct {
	Stage        Stage         `json:"stage"`
	MAC          macaddr.MAC   `json:"mac,omitempty"`
	Action       policy.Action `json:"-"`
	LogID        string        `json:"log_id,omitempty"`
	LogFailed    bool          `json:"log_failed,omitempty"`
	LedgerQueued bool          `json:"ledger_queued,omitempty"`
	BlockOutcome string        `json:"block_outcome,omitempty"`
	// DedupFailOpen is set when the dedup check could not reach the enforcer.
	DedupFailOpen bool `json:"dedup_fail_open,omitempty"`
}

// Blocked reports whether the MAC was newly added to the blocklist.
func (r Result) Blocked() bool { return r.BlockOutcome == BlockOutcomeBlocked }

// Stats are cumulative counters since the pipeline was created.
type Stats struct {
	Frames            uint64 `json:"frames"`
	Dropped           uint64 `json:"dropped"`
	Events            uint64 `json:"events"`
	Duplicates        uint64 `json:"duplicates"`
	DedupFailOpen     uint64 `json:"dedup_fail_open"`
	Logged            uint64 `json:"logged"`
	LogFailures       uint64 `json:"log_failures"`
	LedgerQueued      uint64 `json:"ledger_queued"`
	LedgerRejected    uint64 `json:"ledger_rejected"`
	SignalUnparseable uint64 `json:"signal_unparseable"`
	Escalations       uint64 `json:"escalations"`
	Blocked           uint64 `json:"blocked"`
	AlreadyBlocked    uint64 `json:"already_blocked"`
	BlockFailures     uint64 `json:"block_failures"`
}

type counters struct {
	frames            atomic.Uint64
	dropped           atomic.Uint64
	events            atomic.Uint64
	duplicates        atomic.Uint64
	dedupFailOpen     atomic.Uint64
	logged            atomic.Uint64
	logFailures       atomic.Uint64
	ledgerQueued      atomic.Uint64
	ledgerRejected    atomic.Uint64
	signalUnparseable atomic.Uint64
	escalations       atomic.Uint64
	blocked           atomic.Uint64
	alreadyBlock      atomic.Uint64
	blockFailures     atomic.Uint64
}

// Pipeline processes events one at a time. Process and Handle may be called
// concurrently, but capture sources deliver sequentially.
type Pipeline struct {
	gw     Gateway
	store  LogStore
	ledger LedgerSink
	stats  SightingRecorder
	logger *slog.Logger
	now    func() time.Time

	c counters
}

// New creates a pipeline. It panics if Gateway or Store is nil.
func New(d Deps) *Pipeline {
	if d.Gateway == nil || d.Store == nil {
		panic("pipeline: Gateway and Store are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{
		gw:     d.Gateway,
		store:  d.Store,
		ledger: d.Ledger,
		stats:  d.Stats,
		logger: d.Logger,
		now:    d.Now,
	}
}

// Process classifies a captured frame and handles it if it is a deauth.
// Other frames are dropped silently.
func (p *Pipeline) Process(ctx context.Context, f capture.Frame) Result {
	p.c.frames.Add(1)
	ev, ok := capture.Classify(f, p.now())
	if !ok {
		p.c.dropped.Add(1)
		metrics.FramesTotal.WithLabelValues("dropped").Inc()
		return Result{Stage: StageDropped}
	}
	metrics.FramesTotal.WithLabelValues("deauth").Inc()
	return p.Handle(ctx, ev)
}

// Handle runs a DetectedEvent through dedup, log, policy and enforcement.
func (p *Pipeline) Handle(ctx context.Context, ev model.DetectedEvent) Result {
	start := time.Now()
	defer func() { metrics.ProcessDuration.Observe(time.Since(start).Seconds()) }()

	p.c.events.Add(1)
	mac := ev.TransmitterMAC.String()
	res := Result{MAC: ev.TransmitterMAC}

	// Dedup
	enforced, err := p.gw.Check(ctx, mac)
	if err != nil {
		res.DedupFailOpen = true
		p.c.dedupFailOpen.Add(1)
		p.stageFailed("dedup", err)
		p.logger.Warn("Enforcer check failed, assuming not blocked",
			logging.MAC(mac), logging.Error(err), logging.ErrorClass(classOf(err)))
	} else if enforced {
		p.c.duplicates.Add(1)
		metrics.EventsTotal.WithLabelValues(string(StageDuplicate)).Inc()
		p.logger.Info("Ignoring event from already-blocked MAC", logging.MAC(mac))
		res.Stage = StageDuplicate
		return res
	}

	// Log
	le := model.NewLogEvent(ev, p.now())
	if id, err := p.store.Insert(ctx, le); err != nil {
		res.LogFailed = true
		p.c.logFailures.Add(1)
		p.stageFailed("log", err)
		p.logger.Error("Local log write failed", logging.MAC(mac), logging.LogID(le.ID),
			logging.Error(err), logging.ErrorClass(logging.ClassStore))
	} else {
		res.LogID = id
		p.c.logged.Add(1)
	}
	if p.ledger != nil {
		if p.ledger.Submit(le) {
			res.LedgerQueued = true
			p.c.ledgerQueued.Add(1)
		} else {
			p.c.ledgerRejected.Add(1)
		}
	}

	// Policy
	if !ev.Signal.Valid {
		p.c.signalUnparseable.Add(1)
		p.logger.Warn("Signal parse failed, not escalating", logging.MAC(mac),
			logging.Signal(ev.Signal.String()), logging.Error(model.ErrSignalUnparseable),
			logging.ErrorClass(logging.ClassParse))
	}
	res.Action = policy.Decide(ev.Signal)
	res.Stage = StageLogged

	p.logger.Info("DeAuth detected", logging.MAC(mac), logging.Signal(ev.Signal.String()),
		logging.Channel(ev.Channel.String()), slog.String("action", res.Action.String()))

	// Enforce
	if res.Action == policy.Escalate {
		res.Stage = StageEscalated
		p.c.escalations.Add(1)
		res.BlockOutcome = p.block(ctx, mac, ev.Signal)
	}

	if p.stats != nil {
		p.stats.Record(stats.Sighting{
			MAC:       ev.TransmitterMAC,
			Signal:    ev.Signal.String(),
			Channel:   ev.Channel.String(),
			Escalated: res.Action == policy.Escalate,
			At:        ev.ObservedAt,
		})
	}

	metrics.EventsTotal.WithLabelValues(string(res.Stage)).Inc()
	return res
}

func (p *Pipeline) block(ctx context.Context, mac string, sig model.Signal) string {
	p.logger.Warn("Strong signal detected, attempting to block",
		logging.MAC(mac), logging.Signal(sig.String()))

	r, err := p.gw.Block(ctx, mac)
	var outcome string
	switch {
	case err == nil && r.AlreadyBlocked:
		outcome = BlockOutcomeAlreadyBlocked
		p.c.alreadyBlock.Add(1)
		p.logger.Info("MAC already blocked", logging.MAC(mac), logging.Total(r.Total))
	case err == nil:
		outcome = BlockOutcomeBlocked
		p.c.blocked.Add(1)
		p.logger.Info("BLOCKED", logging.MAC(mac))
	case errors.Is(err, gateway.ErrUnavailable):
		outcome = BlockOutcomeUnavailable
		p.c.blockFailures.Add(1)
		p.stageFailed("enforce", err)
		p.logger.Error("Failed to block: enforcement unavailable", logging.MAC(mac),
			logging.Error(err), logging.ErrorClass(classOf(err)))
	default:
		outcome = BlockOutcomeFailed
		p.c.blockFailures.Add(1)
		p.stageFailed("enforce", err)
		p.logger.Error("Failed to block", logging.MAC(mac),
			logging.Error(err), logging.ErrorClass(classOf(err)))
	}
	metrics.BlockRequests.WithLabelValues(outcome).Inc()
	return outcome
}

func (p *Pipeline) stageFailed(stage string, err error) {
	metrics.StageFailures.WithLabelValues(stage, classOf(err)).Inc()
}

// classOf maps an error onto the error_class taxonomy.
func classOf(err error) string {
	var uerr *gateway.UnavailableError
	var ferr *macaddr.FormatError
	switch {
	case errors.As(err, &uerr):
		return logging.ClassUnavailable
	case errors.Is(err, gateway.ErrUnavailable):
		return logging.ClassUnavailable
	case errors.As(err, &ferr):
		return logging.ClassValidation
	case errors.Is(err, gateway.ErrProtocol):
		return "protocol"
	default:
		return logging.ClassStore
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:            p.c.frames.Load(),
		Dropped:           p.c.dropped.Load(),
		Events:            p.c.events.Load(),
		Duplicates:        p.c.duplicates.Load(),
		DedupFailOpen:     p.c.dedupFailOpen.Load(),
		Logged:            p.c.logged.Load(),
		LogFailures:       p.c.logFailures.Load(),
		LedgerQueued:      p.c.ledgerQueued.Load(),
		LedgerRejected:    p.c.ledgerRejected.Load(),
		SignalUnparseable: p.c.signalUnparseable.Load(),
		Escalations:       p.c.escalations.Load(),
		Blocked:           p.c.blocked.Load(),
		AlreadyBlocked:    p.c.alreadyBlock.Load(),
		BlockFailures:     p.c.blockFailures.Load(),
	}
}
