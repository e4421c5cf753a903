package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/tools/frame-seeder/scenarios"
)

func TestEmitWritesJSONLines(t *testing.T) {
	s, ok := scenarios.Get("both")
	require.True(t, ok)
	frames := s.Generate(scenarios.Config{Now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), Count: 1})

	var buf bytes.Buffer
	sent, deauths, err := emit(context.Background(), frames, writerSink(&buf), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, deauths)

	var lines []map[string]any
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "11:22:33:44:55:66", lines[0]["addr2"])
	assert.Equal(t, float64(-75), lines[0]["dbm_antsignal"])
	assert.Equal(t, "DE:AD:BE:EF:00:01", lines[1]["addr2"])
	assert.Equal(t, float64(-35), lines[1]["dbm_antsignal"])
	assert.Equal(t, float64(12), lines[1]["subtype"])
	assert.Equal(t, "2026-05-04T10:00:01Z", lines[1]["captured_at"])
}

func TestEmitStopsOnSinkError(t *testing.T) {
	s, _ := scenarios.Get("weak")
	frames := s.Generate(scenarios.Config{Now: time.Now(), Count: 3})

	calls := 0
	failing := func(context.Context, []byte) error {
		calls++
		if calls == 2 {
			return errors.New("nats: connection closed")
		}
		return nil
	}
	sent, _, err := emit(context.Background(), frames, failing, 0)
	require.Error(t, err)
	assert.Equal(t, 1, sent)
}
