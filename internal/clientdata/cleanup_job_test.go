package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo, db := newTestRepository(t, now)
	defer db.Close()

	require.NoError(t, repo.Store(TableDouble, "expired", []cachedItem{{ID: "a"}}, -time.Hour))
	require.NoError(t, repo.Store(TableDouble, "fresh", []cachedItem{{ID: "b"}}, time.Hour))
	require.NoError(t, repo.Store(TableMines, "expired", []cachedItem{{ID: "c"}}, -time.Hour))

	job := NewCleanupJob(repo, zerolog.Nop())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT (SELECT COUNT(*) FROM blaze_double) + (SELECT COUNT(*) FROM blaze_mines)").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCleanupJobRunMissingTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.Exec("DROP TABLE blaze_mines")
	require.NoError(t, err)

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Error(t, job.Run())
}
