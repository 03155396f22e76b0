package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/search/searchtest"
)

func setupIndexDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, MigrateIndex(context.Background(), db))
	return db
}

func TestIndexStore_Contract(t *testing.T) {
	searchtest.RunIndexStoreTests(t, func(t *testing.T) search.IndexStore {
		return NewIndexStore(NewConnectionManagerFromDB(setupIndexDB(t)))
	})
}

func TestIndexStore_ScanOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := NewIndexStore(NewConnectionManagerFromDB(setupIndexDB(t)))

	later := searchtest.Epoch.Add(time.Second)
	require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "a-2", "second", later)))
	require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "b-1", "first", searchtest.Epoch)))

	entries, err := store.Scan(ctx, search.EntityTypeAll)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b-1", entries[0].EntityID)
	assert.Equal(t, "a-2", entries[1].EntityID)
}

func TestIndexStore_ReadsUseReplica(t *testing.T) {
	ctx := context.Background()
	primary, replica := setupIndexDB(t), setupIndexDB(t)
	store := NewIndexStore(NewConnectionManagerFromDB(primary, replica))

	require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeProject, "p-1", "Acme", searchtest.Epoch)))

	// the replica never received the write
	_, err := store.Get(ctx, search.EntityTypeProject, "p-1")
	assert.ErrorIs(t, err, search.ErrNotFound)

	var n int
	require.NoError(t, primary.QueryRow(`SELECT COUNT(*) FROM search_index`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestIndexStore_CorruptRow(t *testing.T) {
	ctx := context.Background()
	db := setupIndexDB(t)
	_, err := db.Exec(`INSERT INTO search_index VALUES ('task', 't-1', 'x', 'not json', '{}', 0, 0)`)
	require.NoError(t, err)

	_, err = NewIndexStore(NewConnectionManagerFromDB(db)).Get(ctx, search.EntityTypeTask, "t-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt keywords")
}

func TestIndexStore_DatabaseErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("upsert", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec("INSERT INTO search_index").WillReturnError(boom)

		err = NewIndexStore(NewConnectionManagerFromDB(db)).
			Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "t-1", "x", searchtest.Epoch))
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan with type filter", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT (.+) FROM search_index WHERE entity_type = \\$1").
			WithArgs("task").
			WillReturnError(boom)

		_, err = NewIndexStore(NewConnectionManagerFromDB(db)).Scan(ctx, search.EntityTypeTask)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec("DELETE FROM search_index").WillReturnError(boom)

		err = NewIndexStore(NewConnectionManagerFromDB(db)).Clear(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		n, err := NewIndexStore(NewConnectionManagerFromDB(db)).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})
}
