// Package ledger appends detected attacks to the tamper-evident ledger and
// retries failed appends on a bounded worker pool.
package ledger

import (
	"context"
	"errors"

	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

var (
	// ErrDisabled is returned by the no-op client.
	ErrDisabled = errors.New("ledger disabled")

	// ErrExhausted wraps the last error once every attempt has failed.
	ErrExhausted = errors.New("ledger append retries exhausted")
)

// Client is the ledger collaborator.
type Client interface {
	// Append records ev and returns the ledger transaction ID.
	Append(ctx context.Context, ev model.LogEvent) (string, error)

	// TotalCount returns the number of records in the ledger. Reporting only.
	TotalCount(ctx context.Context) (int64, error)

	// Recent returns up to n of the newest records, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// Entry is a ledger record as read back, with its transaction ID and whether
// its signature still matches.
type Entry struct {
	TxID     string             `json:"tx_id"`
	Record   model.LedgerRecord `json:"record"`
	Verified bool               `json:"verified"`
}

// NoOp is used when the ledger is disabled.
type NoOp struct{}

func (NoOp) Append(context.Context, model.LogEvent) (string, error) { return "", ErrDisabled }
func (NoOp) TotalCount(context.Context) (int64, error)              { return 0, ErrDisabled }
func (NoOp) Recent(context.Context, int) ([]Entry, error)           { return nil, ErrDisabled }
