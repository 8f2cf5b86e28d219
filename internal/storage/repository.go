package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/session"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides database access for session records. It implements
// session.Store.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// GetSession retrieves a session by ID. Returns nil, nil when not found.
func (r *Repository) GetSession(ctx context.Context, id string) (*session.Record, error) {
	const q = `
		SELECT id, cities, active_index, units, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	var rec session.Record
	var citiesJSON []byte
	var units string

	err := r.q.QueryRow(ctx, q, id).Scan(
		&rec.ID,
		&citiesJSON,
		&rec.State.ActiveIndex,
		&units,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}

	if err := json.Unmarshal(citiesJSON, &rec.State.Cities); err != nil {
		return nil, fmt.Errorf("unmarshaling cities for session %s: %w", id, err)
	}
	rec.State.Units = openmeteo.ParseUnits(units)

	return &rec, nil
}

// UpsertSession inserts or updates a session record. On conflict (id) the
// cities, active index, units, and updated_at are replaced.
func (r *Repository) UpsertSession(ctx context.Context, id string, state session.State) error {
	citiesJSON, err := json.Marshal(state.Cities)
	if err != nil {
		return fmt.Errorf("marshaling cities for session %s: %w", id, err)
	}

	const q = `
		INSERT INTO sessions (id, cities, active_index, units, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET cities       = EXCLUDED.cities,
		    active_index = EXCLUDED.active_index,
		    units        = EXCLUDED.units,
		    updated_at   = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, q, id, citiesJSON, state.ActiveIndex, string(state.Units)); err != nil {
		return fmt.Errorf("upserting session %s: %w", id, err)
	}

	return nil
}

// DeleteSession removes a session record. Deleting an unknown ID is not an
// error.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
