package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/session"
	"github.com/skypulse/skypulse/internal/storage"
)

// ---- mock Querier ----

type mockQuerier struct {
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.queryRowFn(ctx, sql, args...)
}
func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFn(ctx, sql, args...)
}

// ---- mock pgx.Row ----

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f *fakeRow) Scan(dest ...any) error { return f.scanFn(dest...) }

// ---- mock MigrationPool ----

type mockMigrationPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockMigrationPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.beginFn(ctx)
}

// mockTx is a minimal pgx.Tx implementation for testing migrations.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error   { return t.commitFn(ctx) }
func (t *mockTx) Rollback(ctx context.Context) error { return t.rollbackFn(ctx) }

// pgx.Tx has many more methods — stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

// ---- helpers ----

func sampleCities() []session.City {
	return []session.City{
		{Name: "London", Country: "GB", Lat: 51.5074, Lon: -0.1278},
		{Name: "Paris", Country: "FR", Lat: 48.8566, Lon: 2.3522},
	}
}

func marshalCities(t *testing.T, cities []session.City) []byte {
	t.Helper()
	b, err := json.Marshal(cities)
	require.NoError(t, err)
	return b
}

// ---- GetSession tests ----

func TestGetSession_Found(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	citiesJSON := marshalCities(t, sampleCities())

	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*string) = "sess-1"
				*dest[1].(*[]byte) = citiesJSON
				*dest[2].(*int) = 1
				*dest[3].(*string) = "imperial"
				*dest[4].(*time.Time) = now
				*dest[5].(*time.Time) = now
				return nil
			}}
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	rec, err := repo.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.ID)
	assert.Equal(t, sampleCities(), rec.State.Cities)
	assert.Equal(t, 1, rec.State.ActiveIndex)
	assert.Equal(t, openmeteo.UnitsImperial, rec.State.Units)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestGetSession_NotFound(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	rec, err := repo.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec, "missing session should return nil, nil")
}

func TestGetSession_DBError(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return fmt.Errorf("connection reset") }}
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.GetSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying session")
}

func TestGetSession_BadJSON(t *testing.T) {
	now := time.Now()
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*string) = "sess-1"
				*dest[1].(*[]byte) = []byte("not-valid-json")
				*dest[2].(*int) = 0
				*dest[3].(*string) = "metric"
				*dest[4].(*time.Time) = now
				*dest[5].(*time.Time) = now
				return nil
			}}
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.GetSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling")
}

func TestGetSession_UnknownUnitsFallBackToMetric(t *testing.T) {
	now := time.Now()
	citiesJSON := marshalCities(t, sampleCities())

	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*string) = "sess-1"
				*dest[1].(*[]byte) = citiesJSON
				*dest[2].(*int) = 0
				*dest[3].(*string) = "furlongs"
				*dest[4].(*time.Time) = now
				*dest[5].(*time.Time) = now
				return nil
			}}
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	rec, err := repo.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, openmeteo.UnitsMetric, rec.State.Units)
}

// ---- UpsertSession tests ----

func TestUpsertSession_Success(t *testing.T) {
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			capturedArgs = args
			return pgconn.CommandTag{}, nil
		},
	}

	state := session.State{
		Cities:      sampleCities(),
		ActiveIndex: 1,
		Units:       openmeteo.UnitsImperial,
	}

	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.UpsertSession(context.Background(), "sess-1", state)
	require.NoError(t, err)
	require.Len(t, capturedArgs, 4)
	assert.Equal(t, "sess-1", capturedArgs[0])
	assert.Equal(t, 1, capturedArgs[2])
	assert.Equal(t, "imperial", capturedArgs[3])

	var cities []session.City
	require.NoError(t, json.Unmarshal(capturedArgs[1].([]byte), &cities))
	assert.Equal(t, sampleCities(), cities)
}

func TestUpsertSession_DBError(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("db error")
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.UpsertSession(context.Background(), "sess-1", session.State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting session")
}

// ---- DeleteSession tests ----

func TestDeleteSession(t *testing.T) {
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			capturedArgs = args
			return pgconn.CommandTag{}, nil
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	require.NoError(t, repo.DeleteSession(context.Background(), "sess-1"))
	assert.Equal(t, []any{"sess-1"}, capturedArgs)
}

func TestDeleteSession_DBError(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("db error")
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.DeleteSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting session")
}

// ---- NewRepository ----

func TestNewRepository_NotNil(t *testing.T) {
	repo := storage.NewRepository(nil)
	assert.NotNil(t, repo)
}

// ---- RunMigrations tests ----

func TestRunMigrations_Success(t *testing.T) {
	var executed []string
	tx := &mockTx{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			executed = append(executed, sql)
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool)
	require.NoError(t, err)
	require.NotEmpty(t, executed)
	assert.Contains(t, executed[0], "CREATE TABLE IF NOT EXISTS sessions")
}

func TestRunMigrations_BeginError(t *testing.T) {
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("cannot begin") },
	}

	err := storage.RunMigrations(context.Background(), pool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing migration")
}

func TestRunMigrations_ExecError(t *testing.T) {
	rolledBack := false
	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("syntax error")
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { rolledBack = true; return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool)
	require.Error(t, err)
	assert.True(t, rolledBack, "a failed migration must roll back its transaction")
}

func TestRunMigrations_CommitError(t *testing.T) {
	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return fmt.Errorf("commit failed") },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool)
	require.Error(t, err)
}
