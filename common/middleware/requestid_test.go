package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	header := w.Header().Get(HeaderRequestID)
	if header == "" || header != seen {
		t.Fatalf("header %q and context %q should match and be non-empty", header, seen)
	}
	id, err := uuid.Parse(header)
	if err != nil {
		t.Fatalf("generated ID is not a UUID: %v", err)
	}
	if id.Version() != 7 {
		t.Errorf("expected UUIDv7, got version %d", id.Version())
	}
}

func TestRequestID_PropagatesExisting(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blocklist", nil)
	req.Header.Set(HeaderRequestID, "upstream-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "upstream-123" {
		t.Errorf("context request ID = %q", seen)
	}
	if got := w.Header().Get(HeaderRequestID); got != "upstream-123" {
		t.Errorf("response header = %q", got)
	}
}

func TestGetRequestID(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	ctx := context.WithValue(context.Background(), RequestIDKey, 42)
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("non-string value should be ignored, got %q", got)
	}
}
