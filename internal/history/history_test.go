package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swbatch/internal/models"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := RunRecord{
			ID:         fmt.Sprintf("run-%d", i),
			InputDir:   "/models",
			OutputDir:  "/exports",
			Formats:    []string{"stl"},
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Stats:      models.ConversionStats{Success: i},
		}
		require.NoError(t, store.Append(rec))
	}

	records, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-2", records[0].ID, "newest first")
	assert.Equal(t, "run-1", records[1].ID)
	assert.Equal(t, 2, records[0].Stats.Success)
}

func TestRecentNoLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(RunRecord{
			ID:         fmt.Sprintf("run-%d", i),
			FinishedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	records, err := store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestRecentEmpty(t *testing.T) {
	store := openStore(t)
	records, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
