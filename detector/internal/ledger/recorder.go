package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/detector/internal/metrics"
	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

// Defaults for RecorderConfig fields left at zero.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultAttempts    = 3
	DefaultBackoffUnit = time.Second
)

// RecorderConfig sizes the worker pool and the retry schedule. After failed
// attempt i (counting from 1) a worker waits i*2*BackoffUnit before the next.
type RecorderConfig struct {
	Workers     int
	QueueSize   int
	Attempts    int
	BackoffUnit time.Duration
	// AttemptTimeout bounds one Append call. Zero means no bound.
	AttemptTimeout time.Duration
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	return c
}

// RecorderStats counts Recorder outcomes since start.
type RecorderStats struct {
	Submitted uint64 `json:"submitted"`
	Appended  uint64 `json:"appended"`
	Exhausted uint64 `json:"exhausted"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Recorder offloads ledger appends so a slow ledger never stalls detection.
// Appends for the same MAC may complete in any order.
type Recorder struct {
	client Client
	cfg    RecorderConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	queue  chan model.LogEvent
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	appended  atomic.Uint64
	exhausted atomic.Uint64
	dropped   atomic.Uint64
}

// NewRecorder starts cfg.Workers workers appending to client.
func NewRecorder(client Client, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		client: client,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		queue:  make(chan model.LogEvent, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for range cfg.Workers {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit queues ev without blocking. It returns false, and counts a drop, if
// the queue is full or the Recorder is closed.
func (r *Recorder) Submit(ev model.LogEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ev, "recorder closed")
		return false
	}

	select {
	case r.queue <- ev:
		r.submitted.Add(1)
		metrics.LedgerQueueDepth.Set(float64(len(r.queue)))
		return true
	default:
		r.drop(ev, "ledger queue full")
		return false
	}
}

func (r *Recorder) drop(ev model.LogEvent, reason string) {
	r.dropped.Add(1)
	metrics.LedgerAppends.WithLabelValues("dropped").Inc()
	r.logger.Warn("ledger append dropped", slog.String("reason", reason),
		logging.LogID(ev.ID), logging.MAC(ev.MAC), logging.ErrorClass(logging.ClassLedger))
}

// Close stops accepting events and waits for queued ones to finish their
// attempts. If ctx expires first, pending backoffs are cut short and the
// remaining events fail.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Submitted: r.submitted.Load(),
		Appended:  r.appended.Load(),
		Exhausted: r.exhausted.Load(),
		Dropped:   r.dropped.Load(),
		Queued:    len(r.queue),
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for ev := range r.queue {
		metrics.LedgerQueueDepth.Set(float64(len(r.queue)))

		txID, err := r.Append(r.ctx, ev)
		switch {
		case err == nil:
			r.appended.Add(1)
			metrics.LedgerAppends.WithLabelValues("ok").Inc()
			r.logger.Info("attack recorded on ledger", logging.LogID(ev.ID), logging.MAC(ev.MAC), logging.TxID(txID))
		case errors.Is(err, ErrDisabled):
			metrics.LedgerAppends.WithLabelValues("disabled").Inc()
		default:
			r.exhausted.Add(1)
			metrics.LedgerAppends.WithLabelValues("exhausted").Inc()
			r.logger.Error("ledger append failed", logging.LogID(ev.ID), logging.MAC(ev.MAC),
				logging.Error(err), logging.ErrorClass(logging.ClassLedger))
		}
	}
}

// Append runs the bounded retry schedule synchronously. After the last
// failed attempt the error wraps both ErrExhausted and the final cause.
func (r *Recorder) Append(ctx context.Context, ev model.LogEvent) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		metrics.LedgerAttempts.Inc()

		txID, err := r.appendOnce(ctx, ev)
		if err == nil {
			return txID, nil
		}
		if errors.Is(err, ErrDisabled) {
			return "", err
		}
		lastErr = err

		if attempt == r.cfg.Attempts {
			break
		}
		wait := time.Duration(attempt) * 2 * r.cfg.BackoffUnit
		r.logger.Warn("ledger append attempt failed, retrying",
			logging.LogID(ev.ID), logging.Attempt(attempt), slog.Int("attempts", r.cfg.Attempts),
			slog.Duration("retry_in", wait), logging.Error(err))
		if serr := r.sleep(ctx, wait); serr != nil {
			lastErr = errors.Join(lastErr, serr)
			break
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.cfg.Attempts, lastErr)
}

func (r *Recorder) appendOnce(ctx context.Context, ev model.LogEvent) (string, error) {
	if r.cfg.AttemptTimeout <= 0 {
		return r.client.Append(ctx, ev)
	}
	actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	return r.client.Append(actx, ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
