package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/session"
)

func activity(id string, ts time.Time) models.UnifiedActivity {
	return models.UnifiedActivity{ID: id, Provider: models.ProviderGitHub, AccountID: "a1", Timestamp: ts}
}

func TestBeginDayIsExclusive(t *testing.T) {
	s := session.New()

	assert.True(t, s.BeginDay("a1", "2026-08-10"))
	assert.False(t, s.BeginDay("a1", "2026-08-10"), "a loading slot cannot be claimed twice")

	// Other slots are unaffected
	assert.True(t, s.BeginDay("a1", "2026-08-11"))
	assert.True(t, s.BeginDay("a2", "2026-08-10"))
}

func TestFailDayReturnsSlotToUnknown(t *testing.T) {
	s := session.New()

	require.True(t, s.BeginDay("a1", "2026-08-10"))
	s.FailDay("a1", "2026-08-10")

	assert.True(t, s.BeginDay("a1", "2026-08-10"), "a failed slot can be retried")
	assert.False(t, s.IsLoaded("a1", "2026-08-10"))
}

func TestReplaceDayMarksLoadedAndMerges(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	require.True(t, s.BeginDay("a1", "2026-08-10"))
	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base)})

	assert.True(t, s.IsLoaded("a1", "2026-08-10"))

	view := s.Snapshot()
	assert.Empty(t, view.LoadingDays)
	assert.Equal(t, []string{"2026-08-10"}, view.LoadedDays["a1"])
	require.Len(t, view.Activities, 1)
}

func TestReplaceDayOverwrites(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base)})
	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c2", base.Add(time.Hour))})

	view := s.Snapshot()
	require.Len(t, view.Activities, 1, "a repeat load replaces the slot contents")
	assert.Equal(t, "c2", view.Activities[0].ID)
}

func TestMergedViewIsSortedDescending(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base)})
	s.ReplaceDay("a1", "2026-08-11", []models.UnifiedActivity{activity("c2", base.AddDate(0, 0, 1))})

	other := models.UnifiedActivity{ID: "w1", Provider: models.ProviderAzureDevOps, AccountID: "a2", Timestamp: base.Add(time.Hour)}
	s.ReplaceDay("a2", "2026-08-10", []models.UnifiedActivity{other})

	view := s.Snapshot()
	require.Len(t, view.Activities, 3)
	assert.Equal(t, "c2", view.Activities[0].ID)
	assert.Equal(t, "w1", view.Activities[1].ID)
	assert.Equal(t, "c1", view.Activities[2].ID)
}

func TestHeatmapTracksMergedView(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base), activity("c2", base.Add(time.Hour))})
	s.ReplaceDay("a1", "2026-08-11", []models.UnifiedActivity{activity("c3", base.AddDate(0, 0, 1))})

	view := s.Snapshot()
	require.Len(t, view.Heatmap, 2)
	assert.Equal(t, "2026-08-10", view.Heatmap[0].Date)
	assert.Equal(t, 2, view.Heatmap[0].Count)
	assert.Equal(t, "2026-08-11", view.Heatmap[1].Date)
	assert.Equal(t, 1, view.Heatmap[1].Count)
}

func TestActivitiesForDay(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base)})
	s.ReplaceDay("a1", "2026-08-11", []models.UnifiedActivity{activity("c2", base.AddDate(0, 0, 1))})

	day := s.ActivitiesForDay("2026-08-10")
	require.Len(t, day, 1)
	assert.Equal(t, "c1", day[0].ID)

	assert.Empty(t, s.ActivitiesForDay("2026-08-12"))
}

func TestTryBeginRefreshIsExclusive(t *testing.T) {
	s := session.New()

	assert.True(t, s.TryBeginRefresh())
	assert.False(t, s.TryBeginRefresh())

	s.FinishCycle("", true)
	assert.True(t, s.TryBeginRefresh())
}

func TestFinishCyclePreservesLastRefreshOnFailure(t *testing.T) {
	s := session.New()

	require.True(t, s.TryBeginRefresh())
	s.FinishCycle("", true)
	successAt := s.Snapshot().LastRefresh
	require.False(t, successAt.IsZero())

	require.True(t, s.TryBeginRefresh())
	s.FinishCycle("everything failed", false)

	view := s.Snapshot()
	assert.True(t, view.Offline)
	assert.Equal(t, "everything failed", view.LastError)
	assert.True(t, successAt.Equal(view.LastRefresh), "stale data stays attributed to its real fetch time")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := session.New()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	s.ReplaceDay("a1", "2026-08-10", []models.UnifiedActivity{activity("c1", base)})

	view := s.Snapshot()
	view.Activities[0].ID = "mutated"
	view.LoadedDays["a1"][0] = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "c1", fresh.Activities[0].ID)
	assert.Equal(t, "2026-08-10", fresh.LoadedDays["a1"][0])
}

func TestSubscribeSignalsOnChange(t *testing.T) {
	s := session.New()
	ch := s.Subscribe()

	s.ReplaceDay("a1", "2026-08-10", nil)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}

	// A burst of changes collapses to at least one pending signal
	s.ReplaceDay("a1", "2026-08-11", nil)
	s.ReplaceDay("a1", "2026-08-12", nil)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a collapsed change signal")
	}
}
