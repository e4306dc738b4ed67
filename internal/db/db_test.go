package db

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCreateAndRecentJobStats(t *testing.T) {
	database := openTestDB(t)
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, database.CreateJobStats(&JobStats{
			JobID:           string(rune('a' + i)),
			SuspectID:       "76561198000000001",
			TaskStatus:      "Uploaded",
			DownloadSeconds: 10,
			AnalysisSeconds: 60,
			RecordSeconds:   300,
			PublishSeconds:  20,
			TotalSeconds:    400,
			CompletedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := database.RecentJobStats(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "c", rows[0].JobID, "newest first")
	assert.Equal(t, "b", rows[1].JobID)
	assert.Equal(t, 400.0, rows[0].TotalSeconds)
	assert.True(t, rows[0].CompletedAt.Equal(base.Add(2*time.Minute)))
}

func TestCreateJobStatsDuplicateID(t *testing.T) {
	database := openTestDB(t)

	row := &JobStats{JobID: "dup", SuspectID: "x", TaskStatus: "Uploaded", CompletedAt: time.Now()}
	require.NoError(t, database.CreateJobStats(row))
	assert.Error(t, database.CreateJobStats(row))
}

func TestRecentJobStatsEmpty(t *testing.T) {
	database := openTestDB(t)

	rows, err := database.RecentJobStats(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
