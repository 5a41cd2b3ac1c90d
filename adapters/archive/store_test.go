package archive

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal"
	"gosplit/internal/migration"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := migration.NewRunner(internal.NewLoggerTo(io.Discard, internal.LogLevelError))
	require.NoError(t, runner.Run(ctx, store.DB()))
	// second run is a no-op
	require.NoError(t, runner.Run(ctx, store.DB()))
	return store
}

func completedSnapshot(id core.ExperimentID) domain.Snapshot {
	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Minute)
	return domain.Snapshot{
		ID:       id,
		Name:     "checkout copy",
		Variants: []domain.Variant{{ID: "a"}, {ID: "b"}},
		Config:   domain.DefaultConfig(),
		Status:   domain.StatusCompleted,
		Samples: []domain.Observation{
			{ID: "o1", VariantID: "a", Success: true, Metrics: map[string]float64{"accuracy": 0.9}},
			{ID: "o2", VariantID: "b", Success: false, Error: "timeout"},
		},
		RequiredSampleSize: 4,
		StopReason:         "Manual stop",
		CreatedAt:          started.Add(-time.Hour),
		StartedAt:          &started,
		EndedAt:            &ended,
		Distribution:       map[core.VariantID]int{"a": 1, "b": 1},
		FinalAnalysis: &domain.Analysis{
			ExperimentID: id,
			TotalSamples: 2,
			Variants: []domain.VariantSummary{
				{VariantID: "a", SampleSize: 1, SuccessfulSamples: 1, SuccessRate: 1, Means: map[string]float64{"accuracy": 0.9}},
				{VariantID: "b", SampleSize: 1, SuccessRate: 0, Means: map[string]float64{"accuracy": 0}},
			},
			Comparison:     stats.AnalysisResult{Family: stats.FamilyWelchT, Valid: true, Significant: true, PValue: 0.01, Alpha: 0.05},
			WinningVariant: "a",
		},
	}
}

func TestSaveGetList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	snap := completedSnapshot("exp_1")

	require.NoError(t, store.Save(ctx, snap))
	// saving again updates in place
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Get(ctx, "exp_1")
	require.NoError(t, err)
	assert.Equal(t, snap.Name, got.Name)
	assert.Equal(t, snap.Samples, got.Samples)
	assert.True(t, snap.StartedAt.Equal(*got.StartedAt))
	require.NotNil(t, got.FinalAnalysis)
	assert.Equal(t, core.VariantID("a"), got.FinalAnalysis.WinningVariant)

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusCompleted, list[0].Status)
	assert.Equal(t, 2, list[0].Samples)
	assert.Equal(t, 0.5, list[0].SuccessRate)
	assert.Equal(t, 0.5, list[0].Progress)
	assert.Equal(t, 90*time.Minute, list[0].Duration)
	assert.True(t, list[0].WinnerDecided)

	variants, err := store.Variants(ctx, "exp_1")
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 0.9, variants[0].MetricMean)
}

func TestSave_StampsArchivedAtFromClock(t *testing.T) {
	archivedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	clock := core.NewManualClock(archivedAt)
	store := openTestStore(t).WithClock(clock)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, completedSnapshot("exp_1")))
	clock.Advance(time.Hour)
	require.NoError(t, store.Save(ctx, completedSnapshot("exp_2")))

	var stamp int64
	require.NoError(t, store.DB().GetContext(ctx, &stamp, "SELECT archived_at FROM experiments WHERE id = ?", "exp_1"))
	assert.Equal(t, archivedAt.UnixMilli(), stamp)

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// newest archive first
	assert.Equal(t, core.ExperimentID("exp_2"), list[0].ID)
}

func TestGet_NotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrExperimentNotFound)
}

func TestList_Limit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, id := range []core.ExperimentID{"exp_1", "exp_2", "exp_3"} {
		require.NoError(t, store.Save(ctx, completedSnapshot(id)))
	}
	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}
