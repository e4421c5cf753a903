// Package localstore keeps the local record of detected attacks, written
// synchronously by the pipeline before the ledger append.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

// ErrClosed is returned by a Store after Close.
var ErrClosed = errors.New("local store closed")

// Store is the local log collaborator.
type Store interface {
	// Insert records ev and returns its log ID.
	Insert(ctx context.Context, ev model.LogEvent) (string, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]model.LogEvent, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Kind names a Store backend in configuration.
const (
	KindMemory     = "memory"
	KindPostgres   = "postgres"
	KindOpenSearch = "opensearch"
)

// DefaultMemoryCapacity bounds the in-memory store.
const DefaultMemoryCapacity = 10000

// Memory keeps the newest events in process memory. Once full, the oldest
// event is evicted.
type Memory struct {
	mu       sync.RWMutex
	events   []model.LogEvent
	capacity int
	total    int64
	closed   bool
}

// NewMemory returns a Memory store holding up to capacity events.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Insert(_ context.Context, ev model.LogEvent) (string, error) {
	if ev.ID == "" {
		return "", fmt.Errorf("insert log event: missing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if len(m.events) == m.capacity {
		m.events = slices.Delete(m.events, 0, 1)
	}
	m.events = append(m.events, ev)
	m.total++
	return ev.ID, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]model.LogEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	n := min(limit, len(m.events))
	if n <= 0 {
		return []model.LogEvent{}, nil
	}
	out := make([]model.LogEvent, 0, n)
	for i := len(m.events) - 1; len(out) < n; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// Count returns the number of events ever inserted, including evicted ones.
func (m *Memory) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.total, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
