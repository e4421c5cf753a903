// Package stats keeps per-transmitter deauth sighting statistics in Redis.
//
// Several detector instances may write concurrently; any service can read.
//
// Redis Key Structure:
//
//	airhawk:mac:{hex}                 - Hash with current stats
//	airhawk:hourly:{hex}:{YYYYMMDDHH} - Sighting count for one hour (expires 48h)
//	airhawk:channels:{hex}            - Set of channels the MAC was seen on (expires with TTL)
//	airhawk:seen                      - Sorted set of MAC hex by last-seen unix time
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/airhawk/common/macaddr"
)

// DefaultTTL is how long an idle MAC's stats are kept.
const DefaultTTL = 7 * 24 * time.Hour

const (
	keyMAC      = "airhawk:mac:"
	keyHourly   = "airhawk:hourly:"
	keyChannels = "airhawk:channels:"
	keySeen     = "airhawk:seen"
	hourLayout  = "2006010215"
)

// ErrNotFound is returned by Get for a MAC with no recorded sightings.
var ErrNotFound = errors.New("no sightings recorded")

// Sighting is one deauth event as seen by the pipeline.
type Sighting struct {
	MAC       macaddr.MAC
	Signal    string
	Channel   string
	Escalated bool
	At        time.Time
}

// Stats is the aggregated view of one transmitter.
type Stats struct {
	MAC              string     `json:"mac"`
	FirstSeen        *time.Time `json:"first_seen,omitempty"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	LastSignal       string     `json:"last_signal,omitempty"`
	LastChannel      string     `json:"last_channel,omitempty"`
	TotalEvents      int64      `json:"total_events"`
	Escalations      int64      `json:"escalations"`
	EventsLastHour   int64      `json:"events_last_hour"`
	EventsLast24h    int64      `json:"events_last_24h"`
	Channels         []string   `json:"channels,omitempty"`
	StatsRetrievedAt time.Time  `json:"stats_retrieved_at"`
}

// Client records and reads sighting statistics.
type Client struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewClient connects to redisURL and pings it.
func NewClient(redisURL string, ttl time.Duration) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, ttl), nil
}

// NewClientFromRedis creates a client from an existing Redis connection.
func NewClientFromRedis(client *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{redis: client, ttl: ttl, now: time.Now}
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redis.Close()
}

// Record writes a single sighting. For high frame rates use a Collector.
func (c *Client) Record(ctx context.Context, s Sighting) error {
	b := NewBatchUpdate(s.MAC)
	b.Add(s)
	return c.FlushBatch(ctx, b)
}

// BatchUpdate holds accumulated sightings of one MAC.
type BatchUpdate struct {
	MAC         macaddr.MAC
	Count       int64
	Escalations int64
	FirstAt     time.Time
	LastAt      time.Time
	LastSignal  string
	LastChannel string
	Channels    map[string]struct{}
}

// NewBatchUpdate creates an empty accumulator for mac.
func NewBatchUpdate(mac macaddr.MAC) *BatchUpdate {
	return &BatchUpdate{MAC: mac, Channels: make(map[string]struct{})}
}

// Add accumulates a sighting into the batch.
func (b *BatchUpdate) Add(s Sighting) {
	b.Count++
	if s.Escalated {
		b.Escalations++
	}
	if b.FirstAt.IsZero() || s.At.Before(b.FirstAt) {
		b.FirstAt = s.At
	}
	if !s.At.Before(b.LastAt) {
		b.LastAt = s.At
		b.LastSignal = s.Signal
		b.LastChannel = s.Channel
	}
	if s.Channel != "" && s.Channel != "Unknown" {
		b.Channels[s.Channel] = struct{}{}
	}
}

// merge folds o into b. Used to requeue a batch whose flush failed.
func (b *BatchUpdate) merge(o *BatchUpdate) {
	b.Count += o.Count
	b.Escalations += o.Escalations
	if !o.FirstAt.IsZero() && (b.FirstAt.IsZero() || o.FirstAt.Before(b.FirstAt)) {
		b.FirstAt = o.FirstAt
	}
	if !o.LastAt.Before(b.LastAt) {
		b.LastAt = o.LastAt
		b.LastSignal = o.LastSignal
		b.LastChannel = o.LastChannel
	}
	for ch := range o.Channels {
		b.Channels[ch] = struct{}{}
	}
}

// FlushBatch writes accumulated batch stats to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, b *BatchUpdate) error {
	if b.Count == 0 {
		return nil
	}

	hex := b.MAC.Hex()
	last := b.LastAt
	if last.IsZero() {
		last = c.now()
	}
	first := b.FirstAt
	if first.IsZero() {
		first = last
	}
	lastUnix := strconv.FormatInt(last.Unix(), 10)

	pipe := c.redis.Pipeline()

	// Main stats hash
	statsKey := keyMAC + hex
	pipe.HSetNX(ctx, statsKey, "first_seen", strconv.FormatInt(first.Unix(), 10))
	pipe.HSet(ctx, statsKey, map[string]any{
		"mac":          b.MAC.String(),
		"last_seen":    lastUnix,
		"last_signal":  b.LastSignal,
		"last_channel": b.LastChannel,
	})
	pipe.HIncrBy(ctx, statsKey, "total_events", b.Count)
	if b.Escalations > 0 {
		pipe.HIncrBy(ctx, statsKey, "escalations", b.Escalations)
	}
	pipe.Expire(ctx, statsKey, c.ttl)

	// Hourly counter (48h expiry for the rolling 24h window)
	hourlyKey := keyHourly + hex + ":" + last.Format(hourLayout)
	pipe.IncrBy(ctx, hourlyKey, b.Count)
	pipe.Expire(ctx, hourlyKey, 48*time.Hour)

	if len(b.Channels) > 0 {
		chKey := keyChannels + hex
		members := make([]any, 0, len(b.Channels))
		for ch := range b.Channels {
			members = append(members, ch)
		}
		pipe.SAdd(ctx, chKey, members...)
		pipe.Expire(ctx, chKey, c.ttl)
	}

	pipe.ZAdd(ctx, keySeen, redis.Z{Score: float64(last.Unix()), Member: hex})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush sightings: %w", err)
	}
	return nil
}

// Get retrieves the current statistics for mac.
func (c *Client) Get(ctx context.Context, mac macaddr.MAC) (*Stats, error) {
	now := c.now()
	hex := mac.Hex()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, keyMAC+hex)
	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourlyCmds[i] = pipe.Get(ctx, keyHourly+hex+":"+t.Format(hourLayout))
	}
	channelsCmd := pipe.SMembers(ctx, keyChannels+hex)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	fields, err := statsCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	stats := &Stats{
		MAC:              mac.String(),
		LastSignal:       fields["last_signal"],
		LastChannel:      fields["last_channel"],
		StatsRetrievedAt: now,
	}
	stats.FirstSeen = parseUnix(fields["first_seen"])
	stats.LastSeen = parseUnix(fields["last_seen"])
	stats.TotalEvents, _ = strconv.ParseInt(fields["total_events"], 10, 64)
	stats.Escalations, _ = strconv.ParseInt(fields["escalations"], 10, 64)

	if val, err := hourlyCmds[0].Int64(); err == nil {
		stats.EventsLastHour = val
	}
	for _, cmd := range hourlyCmds {
		if val, err := cmd.Int64(); err == nil {
			stats.EventsLast24h += val
		}
	}

	if channels, err := channelsCmd.Result(); err == nil && len(channels) > 0 {
		sort.Slice(channels, func(i, j int) bool {
			a, _ := strconv.Atoi(channels[i])
			b, _ := strconv.Atoi(channels[j])
			return a < b
		})
		stats.Channels = channels
	}

	return stats, nil
}

// Active returns the MACs seen within since, most recent first.
func (c *Client) Active(ctx context.Context, since time.Duration) ([]macaddr.MAC, error) {
	cutoff := c.now().Add(-since).Unix()
	hexes, err := c.redis.ZRevRangeByScore(ctx, keySeen, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active MACs: %w", err)
	}

	macs := make([]macaddr.MAC, 0, len(hexes))
	for _, h := range hexes {
		if m, err := fromHex(h); err == nil {
			macs = append(macs, m)
		}
	}
	return macs, nil
}

func parseUnix(s string) *time.Time {
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

func fromHex(h string) (macaddr.MAC, error) {
	if len(h) != 12 {
		return "", &macaddr.FormatError{Input: h}
	}
	return macaddr.Parse(h[0:2] + ":" + h[2:4] + ":" + h[4:6] + ":" + h[6:8] + ":" + h[8:10] + ":" + h[10:12])
}
