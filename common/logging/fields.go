package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across services.
const (
	FieldService    = "service"
	FieldRequestID  = "request_id"
	FieldMAC        = "mac"
	FieldSignal     = "signal_dbm"
	FieldChannel    = "channel"
	FieldCommand    = "command"
	FieldRemoteAddr = "remote_addr"
	FieldTxID       = "tx_id"
	FieldLogID      = "log_id"
	FieldAttempt    = "attempt"
	FieldTotal      = "total_blocked"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldErrorClass = "error_class"
)

// Error classes reported alongside FieldError so each failure kind is
// distinguishable in the logs.
const (
	ClassValidation  = "validation"
	ClassUnavailable = "unavailable"
	ClassPersistence = "persistence"
	ClassLedger      = "ledger"
	ClassParse       = "parse"
	ClassStore       = "local_store"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// MAC returns a slog attribute for a MAC address.
func MAC(mac string) slog.Attr {
	return slog.String(FieldMAC, mac)
}

// Signal returns a slog attribute for the raw signal strength.
func Signal(raw string) slog.Attr {
	return slog.String(FieldSignal, raw)
}

// Channel returns a slog attribute for a wireless channel.
func Channel(ch string) slog.Attr {
	return slog.String(FieldChannel, ch)
}

// Command returns a slog attribute for a protocol verb.
func Command(verb string) slog.Attr {
	return slog.String(FieldCommand, verb)
}

// RemoteAddr returns a slog attribute for a peer address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(FieldRemoteAddr, addr)
}

// TxID returns a slog attribute for a ledger transaction ID.
func TxID(id string) slog.Attr {
	return slog.String(FieldTxID, id)
}

// LogID returns a slog attribute for a local log store ID.
func LogID(id string) slog.Attr {
	return slog.String(FieldLogID, id)
}

// Attempt returns a slog attribute for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Total returns a slog attribute for the blocklist size.
func Total(n int) slog.Attr {
	return slog.Int(FieldTotal, n)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// ErrorClass returns a slog attribute naming the class of a failure.
func ErrorClass(class string) slog.Attr {
	return slog.String(FieldErrorClass, class)
}
