package blockstore

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/common/macaddr"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "blocked_macs.json")
	return New(path, slog.New(slog.DiscardHandler)), path
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	store, path := newTestStore(t)

	assert.Equal(t, 0, store.Load())
	assert.Equal(t, 0, store.Len())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "Load must not create the snapshot")
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"blocked_macs": [`), 0o644))

	assert.Equal(t, 0, store.Load())
	assert.Empty(t, store.List())
}

func TestLoad_SkipsInvalidAndCanonicalizes(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := `{"blocked_macs":["AA:BB:CC:DD:EE:FF","not-a-mac","11:22:33:44:55:66"],"last_updated":"2024-01-01 00:00:00","total_blocked":3}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	assert.Equal(t, 2, store.Load())
	assert.True(t, store.Contains("aa:bb:cc:dd:ee:ff"))
	assert.True(t, store.Contains("11:22:33:44:55:66"))
}

func TestAdd_IdempotentAndSavesOnce(t *testing.T) {
	store, path := newTestStore(t)
	mac := macaddr.MustParse("DE:AD:BE:EF:00:01")

	added, total, err := store.Add(mac)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, store.Saves())

	added, total, err = store.Add(mac)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, total, "total unchanged for a repeat block")
	assert.Equal(t, 1, store.Saves(), "no save when nothing changed")

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"de:ad:be:ef:00:01"}, snap.BlockedMACs)
	assert.Equal(t, 1, snap.TotalBlocked)
}

func TestRemove(t *testing.T) {
	store, path := newTestStore(t)
	a := macaddr.MustParse("aa:aa:aa:aa:aa:aa")
	b := macaddr.MustParse("bb:bb:bb:bb:bb:bb")
	_, _, err := store.Add(a)
	require.NoError(t, err)
	_, _, err = store.Add(b)
	require.NoError(t, err)

	removed, err := store.Remove("cc:cc:cc:cc:cc:cc")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 2, store.Saves())

	removed, err = store.Remove(a)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 3, store.Saves())

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bb:bb:bb:bb:bb:bb"}, snap.BlockedMACs)
	assert.Equal(t, 1, snap.TotalBlocked)
}

func TestSave_SnapshotFormat(t *testing.T) {
	fixed := time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local)
	path := filepath.Join(t.TempDir(), "blocked_macs.json")
	store := New(path, slog.New(slog.DiscardHandler), WithClock(func() time.Time { return fixed }))

	for _, m := range []string{"cc:cc:cc:cc:cc:cc", "aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb"} {
		_, _, err := store.Add(macaddr.MustParse(m))
		require.NoError(t, err)
	}

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb", "cc:cc:cc:cc:cc:cc"}, snap.BlockedMACs)
	assert.Equal(t, "2025-03-09 14:05:07", snap.LastUpdated)
	assert.Equal(t, len(snap.BlockedMACs), snap.TotalBlocked)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSave_EmptySetWritesEmptyList(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"blocked_macs": []`)
	assert.Contains(t, string(data), `"total_blocked": 0`)
}

func TestRoundTrip(t *testing.T) {
	faker := gofakeit.New(7)
	store, path := newTestStore(t)

	want := make(map[macaddr.MAC]bool)
	for range 25 {
		mac := macaddr.MustParse(faker.MacAddress())
		_, _, err := store.Add(mac)
		require.NoError(t, err)
		want[mac] = true
	}

	reloaded := New(path, slog.New(slog.DiscardHandler))
	assert.Equal(t, len(want), reloaded.Load())
	for mac := range want {
		assert.True(t, reloaded.Contains(mac), "missing %s after reload", mac)
	}
	assert.ElementsMatch(t, store.List(), reloaded.List())
}

func TestSave_FailureKeepsMutation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := New(filepath.Join(blocker, "blocked_macs.json"), slog.New(slog.DiscardHandler))
	added, total, err := store.Add("aa:bb:cc:dd:ee:ff")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, added)
	assert.Equal(t, 1, total)
	assert.True(t, store.Contains("aa:bb:cc:dd:ee:ff"), "in-memory set is the source of truth")
}

func TestNew_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, New("", nil).Path())
}
