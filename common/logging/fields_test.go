package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"service", Service("enforcer"), FieldService, "enforcer"},
		{"mac", MAC("aa:bb:cc:dd:ee:ff"), FieldMAC, "aa:bb:cc:dd:ee:ff"},
		{"signal", Signal("-42"), FieldSignal, "-42"},
		{"channel", Channel("Unknown"), FieldChannel, "Unknown"},
		{"command", Command("BLOCK"), FieldCommand, "BLOCK"},
		{"remote addr", RemoteAddr("127.0.0.1:5555"), FieldRemoteAddr, "127.0.0.1:5555"},
		{"tx id", TxID("17"), FieldTxID, "17"},
		{"log id", LogID("0192"), FieldLogID, "0192"},
		{"attempt", Attempt(2), FieldAttempt, int64(2)},
		{"total", Total(5), FieldTotal, int64(5)},
		{"method", Method("GET"), FieldMethod, "GET"},
		{"path", Path("/healthz"), FieldPath, "/healthz"},
		{"status", Status(503), FieldStatus, int64(503)},
		{"duration", Duration(1500 * time.Millisecond), FieldDuration, int64(1500)},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"nil error", Error(nil), FieldError, ""},
		{"error class", ErrorClass(ClassPersistence), FieldErrorClass, "persistence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
			}
			if got := tt.attr.Value.Any(); got != tt.want {
				t.Errorf("value = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}
