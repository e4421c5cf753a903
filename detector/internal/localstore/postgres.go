package localstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/airhawk/common/database"
	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the deauth_logs schema up to date.
func Migrate(connString string) error {
	return database.Migrate(migrations, "migrations", connString)
}

// Postgres stores events in the deauth_logs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connString. Run Migrate first.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := database.Connect(ctx, connString, database.PoolOptions{})
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Insert(ctx context.Context, ev model.LogEvent) (string, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO deauth_logs (id, mac, signal, channel, message, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := p.pool.Exec(ctx, query, ev.ID, ev.MAC, ev.Signal, ev.Channel, ev.Message, ev.LoggedAt); err != nil {
		return "", fmt.Errorf("failed to insert deauth log: %w", err)
	}
	return ev.ID, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]model.LogEvent, error) {
	if limit <= 0 {
		return []model.LogEvent{}, nil
	}
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id::text, mac, signal, channel, message, logged_at
		FROM deauth_logs
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deauth logs: %w", err)
	}
	defer rows.Close()

	events := make([]model.LogEvent, 0, limit)
	for rows.Next() {
		var ev model.LogEvent
		if err := rows.Scan(&ev.ID, &ev.MAC, &ev.Signal, &ev.Channel, &ev.Message, &ev.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deauth log: %w", err)
		}
		ev.LoggedAt = ev.LoggedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deauth logs: %w", err)
	}
	return events, nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deauth_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deauth logs: %w", err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
