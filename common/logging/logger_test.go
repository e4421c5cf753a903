package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/telhawk-systems/airhawk/common/middleware"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	return entry
}

func TestNewWithWriter_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, slog.LevelInfo, "json").Info("enforcer started", MAC("aa:bb:cc:dd:ee:ff"))
	entry := decodeLine(t, &buf)
	if entry["msg"] != "enforcer started" || entry[FieldMAC] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected json entry: %v", entry)
	}

	buf.Reset()
	NewWithWriter(&buf, slog.LevelInfo, "text").Info("enforcer started", Total(3))
	if !strings.Contains(buf.String(), "total_blocked=3") {
		t.Errorf("expected text attrs, got: %s", buf.String())
	}
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")
	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got: %s", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn output, got: %s", buf.String())
	}
}

func TestWithContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	logger.InfoContext(ctx, "blocklist listed")
	entry := decodeLine(t, &buf)
	if entry[FieldRequestID] != "req-42" {
		t.Errorf("expected request_id, got: %v", entry)
	}

	buf.Reset()
	logger.WarnContext(context.Background(), "no request")
	entry = decodeLine(t, &buf)
	if _, ok := entry[FieldRequestID]; ok {
		t.Errorf("unexpected request_id in %v", entry)
	}
}

func TestContextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "json")
	ctx := context.Background()

	cases := []struct {
		log   func(context.Context, string, ...any)
		level string
	}{
		{logger.DebugContext, "DEBUG"},
		{logger.InfoContext, "INFO"},
		{logger.WarnContext, "WARN"},
		{logger.ErrorContext, "ERROR"},
	}
	for _, tc := range cases {
		buf.Reset()
		tc.log(ctx, "message")
		if entry := decodeLine(t, &buf); entry["level"] != tc.level {
			t.Errorf("expected level %s, got %v", tc.level, entry["level"])
		}
	}
}

func TestWithAndWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.With(Service("detector")).Info("ready")
	if entry := decodeLine(t, &buf); entry[FieldService] != "detector" {
		t.Errorf("expected service attr, got %v", entry)
	}

	buf.Reset()
	logger.WithGroup("pipeline").Info("stats", "processed", 7)
	entry := decodeLine(t, &buf)
	group, ok := entry["pipeline"].(map[string]any)
	if !ok || group["processed"] != float64(7) {
		t.Errorf("expected pipeline group, got %v", entry)
	}
}

func TestFromSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := FromSlog(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	logger.ErrorContext(ctx, "store read failed")
	if entry := decodeLine(t, &buf); entry[FieldRequestID] != "req-7" {
		t.Errorf("expected request_id, got %v", entry)
	}

	if FromSlog(nil).Logger != slog.Default() {
		t.Error("nil logger should fall back to slog.Default")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"DEBUG":   slog.LevelInfo, // case sensitive
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := New(slog.LevelInfo, "json")
	SetDefault(logger)
	if slog.Default() != logger.Logger {
		t.Error("SetDefault did not update slog.Default()")
	}
}
