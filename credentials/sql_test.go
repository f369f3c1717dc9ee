package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Exists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, DialectPostgres)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM api_keys WHERE key = $1)`)).
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.Exists(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("k1").
			WillReturnError(errors.New("connection reset"))

		_, err := store.Exists(ctx, "k1")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_AddUsesDialectPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO api_keys (key, description, created_at) VALUES (?, ?, ?)`)).
		WithArgs("k1", "ci runner", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewSQLStore(db, DialectSQLite)
	require.NoError(t, store.Add(context.Background(), APIKey{Value: "k1", Description: "ci runner", CreatedAt: created}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_AddDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs("k1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	store := NewSQLStore(db, DialectPostgres)
	err = store.Add(context.Background(), APIKey{Value: "k1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MigrateCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS api_keys \(\s+id SERIAL PRIMARY KEY`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLStore(db, DialectPostgres).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	store, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "apikeys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")

	ok, err := store.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Add(ctx, APIKey{Value: "k1"}))
	ok, err = store.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = store.Add(ctx, APIKey{Value: "k1", Description: "again"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect(" SQLite ")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}
