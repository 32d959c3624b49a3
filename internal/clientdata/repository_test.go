package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE blaze_double (endpoint TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL, updated_at INTEGER NOT NULL);
CREATE TABLE blaze_mines (endpoint TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL, updated_at INTEGER NOT NULL);
`

type cachedItem struct {
	ID    string `msgpack:"id"`
	Color int    `msgpack:"color"`
	Roll  int    `msgpack:"roll"`
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // each :memory: connection is its own database

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func newTestRepository(t *testing.T, now time.Time) (*Repository, *sql.DB) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	repo.now = func() time.Time { return now }
	return repo, db
}

func TestStoreAndGetIfFresh(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo, db := newTestRepository(t, now)
	defer db.Close()

	items := []cachedItem{{ID: "a", Color: 1, Roll: 3}, {ID: "b", Color: 0, Roll: 0}}
	require.NoError(t, repo.Store(TableDouble, "https://example.test/recent", items, TTLRecentGames))

	var expiresAt, updatedAt int64
	err := db.QueryRow("SELECT expires_at, updated_at FROM blaze_double WHERE endpoint = ?", "https://example.test/recent").
		Scan(&expiresAt, &updatedAt)
	require.NoError(t, err)
	assert.Equal(t, now.Add(TTLRecentGames).Unix(), expiresAt)
	assert.Equal(t, now.Unix(), updatedAt)

	var got []cachedItem
	ok, err := repo.GetIfFresh(TableDouble, "https://example.test/recent", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, items, got)
}

func TestGetIfFreshExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo, db := newTestRepository(t, now)
	defer db.Close()

	require.NoError(t, repo.Store(TableMines, "u", []cachedItem{{ID: "x"}}, time.Minute))

	repo.now = func() time.Time { return now.Add(2 * time.Minute) }

	var got []cachedItem
	ok, err := repo.GetIfFresh(TableMines, "u", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	// Stale data is still available through Get
	ok, err = repo.Get(TableMines, "u", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got[0].ID)
}

func TestGetMissingKey(t *testing.T) {
	repo, db := newTestRepository(t, time.Now())
	defer db.Close()

	var got []cachedItem
	ok, err := repo.Get(TableDouble, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreOverwrites(t *testing.T) {
	repo, db := newTestRepository(t, time.Now())
	defer db.Close()

	require.NoError(t, repo.Store(TableDouble, "u", []cachedItem{{ID: "old"}}, time.Hour))
	require.NoError(t, repo.Store(TableDouble, "u", []cachedItem{{ID: "new"}}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM blaze_double").Scan(&count))
	assert.Equal(t, 1, count)

	var got []cachedItem
	_, err := repo.Get(TableDouble, "u", &got)
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].ID)
}

func TestInvalidTable(t *testing.T) {
	repo, db := newTestRepository(t, time.Now())
	defer db.Close()

	var out []cachedItem
	assert.Error(t, repo.Store("users; DROP TABLE blaze_double", "k", out, time.Hour))
	_, err := repo.GetIfFresh("nope", "k", &out)
	assert.Error(t, err)
	_, err = repo.Get("nope", "k", &out)
	assert.Error(t, err)
	assert.Error(t, repo.Delete("nope", "k"))
	_, err = repo.DeleteExpired("nope")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	repo, db := newTestRepository(t, time.Now())
	defer db.Close()

	require.NoError(t, repo.Store(TableDouble, "u", []cachedItem{{ID: "a"}}, time.Hour))
	require.NoError(t, repo.Delete(TableDouble, "u"))

	var got []cachedItem
	ok, err := repo.Get(TableDouble, "u", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAllExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo, db := newTestRepository(t, now)
	defer db.Close()

	require.NoError(t, repo.Store(TableDouble, "old", []cachedItem{}, -time.Hour))
	require.NoError(t, repo.Store(TableDouble, "fresh", []cachedItem{}, time.Hour))
	require.NoError(t, repo.Store(TableMines, "old", []cachedItem{}, -time.Minute))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TableDouble])
	assert.Equal(t, int64(1), results[TableMines])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM blaze_double").Scan(&count))
	assert.Equal(t, 1, count)
}
