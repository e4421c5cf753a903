// Package blockstore keeps the set of blocked MAC addresses and mirrors it to
// a JSON snapshot on disk after every mutation.
//
// A Store is not safe for concurrent use; the enforcement server serializes
// access to it.
package blockstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/macaddr"
)

// DefaultPath is where the snapshot lives when no path is configured.
const DefaultPath = "logs/blocked_macs.json"

// TimeLayout formats Snapshot.LastUpdated.
const TimeLayout = "2006-01-02 15:04:05"

// Snapshot is the on-disk form of the blocklist.
type Snapshot struct {
	BlockedMACs  []string `json:"blocked_macs"`
	LastUpdated  string   `json:"last_updated"`
	TotalBlocked int      `json:"total_blocked"`
}

// PersistenceError reports a failed snapshot write. The in-memory set keeps
// the mutation that triggered the write.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save blocklist snapshot %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the in-memory blocklist plus its snapshot file.
type Store struct {
	path   string
	macs   map[macaddr.MAC]struct{}
	logger *slog.Logger
	now    func() time.Time
	saves  int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store backed by path. Call Load to seed it from disk.
func New(path string, logger *slog.Logger, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		macs:   make(map[macaddr.MAC]struct{}),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory set with the snapshot's contents and returns
// the number of MACs loaded. A missing or unreadable snapshot yields an empty
// set; Load never fails.
func (s *Store) Load() int {
	s.macs = make(map[macaddr.MAC]struct{})

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no blocklist snapshot, starting empty", slog.String("path", s.path))
		return 0
	}
	if err != nil {
		s.logger.Warn("blocklist snapshot unreadable, starting empty",
			slog.String("path", s.path), logging.Error(err), logging.ErrorClass(logging.ClassPersistence))
		return 0
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("blocklist snapshot corrupt, starting empty",
			slog.String("path", s.path), logging.Error(err), logging.ErrorClass(logging.ClassParse))
		return 0
	}

	for _, raw := range snap.BlockedMACs {
		mac, err := macaddr.Parse(raw)
		if err != nil {
			s.logger.Warn("skipping invalid MAC in snapshot",
				slog.String("entry", raw), logging.ErrorClass(logging.ClassValidation))
			continue
		}
		s.macs[mac] = struct{}{}
	}

	s.logger.Info("loaded blocklist snapshot",
		slog.String("path", s.path), logging.Total(len(s.macs)))
	return len(s.macs)
}

// Contains reports whether mac is blocked.
func (s *Store) Contains(mac macaddr.MAC) bool {
	_, ok := s.macs[mac]
	return ok
}

// Add blocks mac. When mac is new the snapshot is rewritten once; a failed
// write is returned as *PersistenceError but the MAC stays blocked.
func (s *Store) Add(mac macaddr.MAC) (added bool, total int, err error) {
	if _, ok := s.macs[mac]; ok {
		return false, len(s.macs), nil
	}
	s.macs[mac] = struct{}{}
	return true, len(s.macs), s.Save()
}

// Remove unblocks mac, rewriting the snapshot once when it was present.
func (s *Store) Remove(mac macaddr.MAC) (removed bool, err error) {
	if _, ok := s.macs[mac]; !ok {
		return false, nil
	}
	delete(s.macs, mac)
	return true, s.Save()
}

// List returns the blocked MACs in ascending order.
func (s *Store) List() []macaddr.MAC {
	out := make([]macaddr.MAC, 0, len(s.macs))
	for mac := range s.macs {
		out = append(out, mac)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of blocked MACs.
func (s *Store) Len() int { return len(s.macs) }

// Saves returns how many snapshot writes have been attempted.
func (s *Store) Saves() int { return s.saves }

// Save writes the full set to the snapshot file atomically: a temp file in the
// same directory is written, synced and renamed over the target.
func (s *Store) Save() error {
	s.saves++

	macs := s.List()
	snap := Snapshot{
		BlockedMACs:  make([]string, len(macs)),
		LastUpdated:  s.now().Format(TimeLayout),
		TotalBlocked: len(macs),
	}
	for i, mac := range macs {
		snap.BlockedMACs[i] = mac.String()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes the snapshot file at path without touching any Store.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}
