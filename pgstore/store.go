package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianbank/ledger"
)

// Store implements ledger.EntityStore over PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an entity store over a connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get implements ledger.EntityStore.
func (s *Store) Get(ctx context.Context, id string) (ledger.Entity, error) {
	var kind string
	var record []byte
	err := s.pool.QueryRow(ctx, "SELECT kind, record FROM ledger_entities WHERE id = $1", id).Scan(&kind, &record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %q", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %q: %w", id, err)
	}
	return ledger.UnmarshalEntity(kind, record)
}

// Upsert implements ledger.EntityStore. The batch is written in one
// database transaction so a concurrent reader sees none or all of it.
func (s *Store) Upsert(ctx context.Context, entities ...ledger.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin entity upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		kind, record, err := ledger.MarshalEntity(e)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entities (id, kind, record) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, record = EXCLUDED.record`,
			e.EntityID(), kind, record)
		if err != nil {
			return fmt.Errorf("failed to upsert entity %q: %w", e.EntityID(), err)
		}
	}
	return tx.Commit(ctx)
}

// List implements ledger.EntityStore. The filter runs client-side; kinds are
// few and entity counts are bounded by the book of business, not by traffic.
func (s *Store) List(ctx context.Context, filter func(ledger.Entity) bool) ([]ledger.Entity, error) {
	rows, err := s.pool.Query(ctx, "SELECT kind, record FROM ledger_entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entity
	for rows.Next() {
		var kind string
		var record []byte
		if err := rows.Scan(&kind, &record); err != nil {
			return nil, err
		}
		entity, err := ledger.UnmarshalEntity(kind, record)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(entity) {
			out = append(out, entity)
		}
	}
	return out, rows.Err()
}
