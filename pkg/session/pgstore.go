package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgStoreLogPrefix = "session:PostgresRegistrationStore"

// PostgresRegistrationStore is a RegistrationStore backed by Postgres via
// pgx, adapted from the teacher's pkg/db/pool.go pooling conventions. It
// gives spec.md's "session-state store" external collaborator a durable,
// cross-instance-visible concrete implementation, for deployments running
// more than one dispatcher process against the same platform set.
type PostgresRegistrationStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistrationStore wraps an already-connected pool. Callers are
// responsible for running EnsureSchema once at startup.
func NewPostgresRegistrationStore(pool *pgxpool.Pool) *PostgresRegistrationStore {
	return &PostgresRegistrationStore{pool: pool}
}

// EnsureSchema creates the registration table if it does not already
// exist.
func (s *PostgresRegistrationStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS dispatcher_session_registrations (
	session_id TEXT PRIMARY KEY,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%s - failed to ensure schema: %w", pgStoreLogPrefix, err)
	}
	return nil
}

// SetRegistered implements RegistrationStore.
func (s *PostgresRegistrationStore) SetRegistered(ctx context.Context, id string) error {
	const q = `
INSERT INTO dispatcher_session_registrations (session_id)
VALUES ($1)
ON CONFLICT (session_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("%s - failed to persist registration for %q: %w", pgStoreLogPrefix, id, err)
	}
	return nil
}

// IsRegistered implements RegistrationStore.
func (s *PostgresRegistrationStore) IsRegistered(ctx context.Context, id string) (bool, error) {
	const q = `SELECT 1 FROM dispatcher_session_registrations WHERE session_id = $1`
	var found int
	err := s.pool.QueryRow(ctx, q, id).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s - failed to query registration for %q: %w", pgStoreLogPrefix, id, err)
	}
	return true, nil
}

// Delete implements RegistrationStore.
func (s *PostgresRegistrationStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM dispatcher_session_registrations WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("%s - failed to delete registration for %q: %w", pgStoreLogPrefix, id, err)
	}
	return nil
}
