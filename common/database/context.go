// Package database holds the shared PostgreSQL plumbing: pool setup,
// embedded schema migrations, and per-operation timeouts.
package database

import (
	"context"
	"time"
)

// Standard timeout durations for database operations
const (
	// DefaultQueryTimeout bounds read queries
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds inserts
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMigrateTimeout bounds schema migrations at startup
	DefaultMigrateTimeout = 60 * time.Second
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
