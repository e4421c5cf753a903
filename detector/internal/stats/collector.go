package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/macaddr"
)

// DefaultFlushInterval is used when NewCollector is given zero.
const DefaultFlushInterval = 5 * time.Second

// Collector accumulates sightings and flushes them to Redis periodically.
// Safe for concurrent use from multiple goroutines.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[macaddr.MAC]*BatchUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector and starts its flush loop.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[macaddr.MAC]*BatchUpdate),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record accumulates a sighting for the next flush. It never blocks on Redis.
func (c *Collector) Record(s Sighting) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[s.MAC]
	if !ok {
		batch = NewBatchUpdate(s.MAC)
		c.batches[s.MAC] = batch
	}
	batch.Add(s)
}

// Client returns the underlying Redis client for reads.
func (c *Collector) Client() *Client { return c.client }

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			// Final flush on shutdown
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush writes all accumulated batches to Redis. Failed batches are merged
// back for the next attempt.
func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[macaddr.MAC]*BatchUpdate)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	var total int64
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush sighting stats",
				logging.MAC(batch.MAC.String()),
				slog.Int64("event_count", batch.Count),
				logging.Error(err),
			)
			c.mu.Lock()
			if existing, ok := c.batches[batch.MAC]; ok {
				existing.merge(batch)
			} else {
				c.batches[batch.MAC] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
		total += batch.Count
	}

	if flushed > 0 {
		c.logger.Debug("flushed sighting stats",
			slog.Int("macs", flushed),
			slog.Int64("total_events", total),
		)
	}
}

// FlushNow forces an immediate flush of all accumulated sightings.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop stops the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the unflushed sighting count per MAC.
func (c *Collector) Pending() map[macaddr.MAC]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[macaddr.MAC]int64, len(c.batches))
	for mac, batch := range c.batches {
		out[mac] = batch.Count
	}
	return out
}
