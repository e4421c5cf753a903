package localstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

func logEvent(i int) model.LogEvent {
	return model.LogEvent{
		ID:       fmt.Sprintf("0192f5a0-0000-7000-8000-%012d", i),
		MAC:      "11:22:33:44:55:66",
		Signal:   "-75",
		Channel:  "6",
		Message:  model.DeauthMessage,
		LoggedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestMemory_InsertRecentCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	for i := 1; i <= 3; i++ {
		id, err := m.Insert(ctx, logEvent(i))
		require.NoError(t, err)
		assert.Equal(t, logEvent(i).ID, id)
	}

	got, err := m.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, logEvent(3).ID, got[0].ID)
	assert.Equal(t, logEvent(2).ID, got[1].ID)

	got, err = m.Recent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = m.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for i := 1; i <= 3; i++ {
		_, err := m.Insert(ctx, logEvent(i))
		require.NoError(t, err)
	}

	got, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, logEvent(3).ID, got[0].ID)
	assert.Equal(t, logEvent(2).ID, got[1].ID)

	n, _ := m.Count(ctx)
	assert.Equal(t, int64(3), n)
}

func TestMemory_RejectsMissingIDAndClosed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	_, err := m.Insert(ctx, model.LogEvent{MAC: "11:22:33:44:55:66"})
	assert.Error(t, err)

	require.NoError(t, m.Ping(ctx))
	require.NoError(t, m.Close())
	_, err = m.Insert(ctx, logEvent(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
	_, err = m.Recent(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Count(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_ConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1000)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Insert(ctx, logEvent(i))
		}()
	}
	wg.Wait()

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}
