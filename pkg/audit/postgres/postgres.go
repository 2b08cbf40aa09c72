// Package postgres is the one concrete EXTERNAL_LOGGERS implementation
// (SPEC_FULL.md's DOMAIN STACK table): a Postgres-backed write-only
// audit trail, grounded on the teacher's
// pkg/compliance/storage/postgres/database.go (migrate-then-connect
// shape, pgx pool for the hot path).
package postgres

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/aye-aye-dev/fossa-node/pkg/audit"
)

// Sink is a Postgres-backed audit.Sink.
type Sink struct {
	pool *pgxpool.Pool
}

// Open runs pending migrations (golang-migrate, lib/pq driver) then
// opens a pgx connection pool for the hot write path. migrationsPath
// may be empty to skip migrations (e.g. when managed externally).
func Open(ctx context.Context, connString, migrationsPath string) (*Sink, error) {
	if migrationsPath != "" {
		if err := runMigrations(connString, migrationsPath); err != nil {
			return nil, fmt.Errorf("audit/postgres: running migrations: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("audit/postgres: opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit/postgres: ping: %w", err)
	}

	return &Sink{pool: pool}, nil
}

func runMigrations(connString, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Record satisfies audit.Sink.
func (s *Sink) Record(ctx context.Context, event audit.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (proc_id, model_class, kind, detail, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ProcID, event.ModelClass, string(event.Kind), event.Detail, event.OccurredAt,
	)
	return err
}

// Close satisfies audit.Sink.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}
