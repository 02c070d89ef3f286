package mission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/swncrew-core/internal/infrastructure/database"
	"github.com/nerrad567/swncrew-core/migrations"
)

func setupHistory(t *testing.T) *SQLiteHistory {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteHistory(db.DB)
}

func completedAt(id string, valve int, end time.Time, status Status) Completed {
	return Completed{
		Mission: Mission{
			ID:             id,
			ValveID:        valve,
			FlowTrajectory: []Point{{Time: 30, FlowRate: 4}},
		},
		StartTS: end.Add(-30 * time.Second),
		EndTS:   end,
		Status:  status,
	}
}

func TestSQLiteHistory_RecordAndGet(t *testing.T) {
	repo := setupHistory(t)
	ctx := context.Background()
	end := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	c := completedAt("m-1", 2, end, StatusFailed)
	c.Error = "valve 2: bridge timeout"
	require.NoError(t, repo.RecordCompletedMission(ctx, c))

	got, err := repo.Get(ctx, "m-1")
	require.NoError(t, err)

	assert.Equal(t, "m-1", got.Mission.ID)
	assert.Equal(t, 2, got.Mission.ValveID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "valve 2: bridge timeout", got.Error)
	assert.True(t, got.StartTS.Equal(c.StartTS))
	assert.True(t, got.EndTS.Equal(end))
	assert.Equal(t, int64(30000), got.DurationMS)
	assert.InDelta(t, 2.0, got.PlannedVolume, 1e-9)
	assert.Equal(t, c.Mission.FlowTrajectory, got.Mission.FlowTrajectory)
	assert.False(t, got.RecordedAt.IsZero())
}

func TestSQLiteHistory_GetNotFound(t *testing.T) {
	repo := setupHistory(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrHistoryNotFound)
}

func TestSQLiteHistory_AssignsMissingID(t *testing.T) {
	repo := setupHistory(t)
	ctx := context.Background()

	c := completedAt("", 1, time.Now(), StatusCompleted)
	require.NoError(t, repo.RecordCompletedMission(ctx, c))
	require.NoError(t, repo.RecordCompletedMission(ctx, c))

	entries, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].Mission.ID)
	assert.NotEqual(t, entries[0].Mission.ID, entries[1].Mission.ID)
}

func TestSQLiteHistory_ListOrderAndLimit(t *testing.T) {
	repo := setupHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordCompletedMission(ctx, completedAt("a", 1, base, StatusCompleted)))
	require.NoError(t, repo.RecordCompletedMission(ctx, completedAt("b", 2, base.Add(500*time.Millisecond), StatusCancelled)))
	require.NoError(t, repo.RecordCompletedMission(ctx, completedAt("c", 1, base.Add(time.Second), StatusCompleted)))

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Mission.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].Mission.ID)

	valve1, err := repo.ListByValve(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, valve1, 2)
	assert.Equal(t, "c", valve1[0].Mission.ID)
	assert.Equal(t, "a", valve1[1].Mission.ID)
}

func TestSQLiteHistory_ListEmpty(t *testing.T) {
	repo := setupHistory(t)

	entries, err := repo.List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, clampLimit(0))
	assert.Equal(t, defaultHistoryLimit, clampLimit(-5))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxHistoryLimit, clampLimit(10000))
}
