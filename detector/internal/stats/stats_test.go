package stats

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/common/macaddr"
)

var (
	strong = macaddr.MustParse("de:ad:be:ef:00:01")
	weak   = macaddr.MustParse("11:22:33:44:55:66")
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewClientFromRedis(rdb, time.Hour)
}

func TestClient_RecordAndGet(t *testing.T) {
	mr, c := setupTestRedis(t)
	now := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, Sighting{MAC: strong, Signal: "-40", Channel: "11", Escalated: true, At: now.Add(-2 * time.Hour)}))
	require.NoError(t, c.Record(ctx, Sighting{MAC: strong, Signal: "-35", Channel: "6", At: now.Add(-time.Minute)}))
	require.NoError(t, c.Record(ctx, Sighting{MAC: strong, Signal: "?", Channel: "Unknown", At: now}))

	s, err := c.Get(ctx, strong)
	require.NoError(t, err)
	assert.Equal(t, "de:ad:be:ef:00:01", s.MAC)
	assert.Equal(t, int64(3), s.TotalEvents)
	assert.Equal(t, int64(1), s.Escalations)
	assert.Equal(t, int64(2), s.EventsLastHour)
	assert.Equal(t, int64(3), s.EventsLast24h)
	assert.Equal(t, "?", s.LastSignal)
	assert.Equal(t, "Unknown", s.LastChannel)
	assert.Equal(t, []string{"6", "11"}, s.Channels)
	require.NotNil(t, s.FirstSeen)
	assert.Equal(t, now.Add(-2*time.Hour), *s.FirstSeen)
	require.NotNil(t, s.LastSeen)
	assert.Equal(t, now, *s.LastSeen)

	assert.True(t, mr.Exists("airhawk:mac:deadbeef0001"))
	assert.Equal(t, time.Hour, mr.TTL("airhawk:mac:deadbeef0001"))
}

func TestClient_GetUnknownMAC(t *testing.T) {
	_, c := setupTestRedis(t)
	_, err := c.Get(context.Background(), weak)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Active(t *testing.T) {
	_, c := setupTestRedis(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, Sighting{MAC: weak, Signal: "-75", At: now.Add(-3 * time.Hour)}))
	require.NoError(t, c.Record(ctx, Sighting{MAC: strong, Signal: "-35", At: now.Add(-time.Minute)}))

	macs, err := c.Active(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []macaddr.MAC{strong}, macs)

	macs, err = c.Active(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []macaddr.MAC{strong, weak}, macs)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient("redis://"+mr.Addr()+"/0", 0)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.NoError(t, c.Ping(context.Background()))

	_, err = NewClient("not-a-url", 0)
	assert.Error(t, err)
}

func TestCollector_BatchesUntilFlush(t *testing.T) {
	_, c := setupTestRedis(t)
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	col := NewCollector(c, time.Hour, slog.New(slog.DiscardHandler))
	for i := range 5 {
		col.Record(Sighting{MAC: weak, Signal: "-75", Channel: "6", At: now.Add(time.Duration(i) * time.Second)})
	}
	col.Record(Sighting{MAC: strong, Signal: "-35", Channel: "11", Escalated: true, At: now})

	assert.Equal(t, map[macaddr.MAC]int64{weak: 5, strong: 1}, col.Pending())
	_, err := c.Get(ctx, weak)
	require.ErrorIs(t, err, ErrNotFound, "nothing written before flush")

	col.FlushNow()
	assert.Empty(t, col.Pending())

	s, err := c.Get(ctx, weak)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.TotalEvents)
	assert.Equal(t, []string{"6"}, s.Channels)

	col.Record(Sighting{MAC: strong, Signal: "-30", Channel: "11", Escalated: true, At: now.Add(time.Second)})
	col.Stop()

	s, err = c.Get(ctx, strong)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TotalEvents, "Stop flushes what is pending")
	assert.Equal(t, int64(2), s.Escalations)
	assert.Equal(t, "-30", s.LastSignal)
}

func TestCollector_RequeuesFailedFlush(t *testing.T) {
	mr, c := setupTestRedis(t)
	col := NewCollector(c, time.Hour, slog.New(slog.DiscardHandler))
	defer col.Stop()

	col.Record(Sighting{MAC: weak, Signal: "-75", At: time.Now()})
	mr.SetError("server unavailable")
	col.FlushNow()
	assert.Equal(t, map[macaddr.MAC]int64{weak: 1}, col.Pending())

	mr.SetError("")
	col.Record(Sighting{MAC: weak, Signal: "-70", At: time.Now()})
	col.FlushNow()
	assert.Empty(t, col.Pending())

	s, err := c.Get(context.Background(), weak)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TotalEvents)
}
