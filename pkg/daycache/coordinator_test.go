package daycache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/daycache"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/session"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type storedDay struct {
	fetchedAt  time.Time
	activities []models.UnifiedActivity
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]map[string]storedDay
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]map[string]storedDay)}
}

func (s *fakeStore) LoadDayIndex(_ context.Context, accountID string) (map[string]models.DayIndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]models.DayIndexEntry)
	for day, row := range s.rows[accountID] {
		index[day] = models.DayIndexEntry{FetchedAt: row.fetchedAt, Count: len(row.activities)}
	}
	return index, nil
}

func (s *fakeStore) LoadActivitiesForDay(_ context.Context, accountID, day string) ([]models.UnifiedActivity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[accountID][day]
	if !ok {
		return nil, false, nil
	}
	return row.activities, true, nil
}

func (s *fakeStore) SaveActivitiesForDay(_ context.Context, accountID, day string, fetchedAt time.Time, activities []models.UnifiedActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows[accountID] == nil {
		s.rows[accountID] = make(map[string]storedDay)
	}
	s.rows[accountID][day] = storedDay{fetchedAt: fetchedAt, activities: activities}
	return nil
}

type fetchCall struct {
	accountID string
	from, to  time.Time
}

type fakeFetcher struct {
	mu         sync.Mutex
	calls      []fetchCall
	activities []models.UnifiedActivity
	err        error
}

func (f *fakeFetcher) FetchActivities(_ context.Context, account models.Account, from, to time.Time) ([]models.UnifiedActivity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{accountID: account.ID, from: from, to: to})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var out []models.UnifiedActivity
	for _, activity := range f.activities {
		if !activity.Timestamp.Before(from) && !activity.Timestamp.After(to) {
			out = append(out, activity)
		}
	}
	return out, nil
}

func account(id string) models.Account {
	return models.Account{
		ID:         id,
		Provider:   models.ProviderGitHub,
		AuthMethod: models.AuthMethodOAuth,
		Enabled:    true,
	}
}

func newCoordinator(fetcher daycache.Fetcher, store daycache.DayStore, sess *session.Session, windowDays int) *daycache.Coordinator {
	return daycache.NewCoordinator(fetcher, store, sess, nil, testLogger(), daycache.Config{
		WindowDays:  windowDays,
		TodayMaxAge: time.Minute,
	})
}

// fixedWindow is a WindowSource that always reports the same width.
type fixedWindow int

func (w fixedWindow) HeatmapWindowDays(_ context.Context) int { return int(w) }

func TestRunCycleFetchesWholeWindowFirstRun(t *testing.T) {
	todayStart, _ := models.ParseDay(models.Today())
	fetcher := &fakeFetcher{activities: []models.UnifiedActivity{
		{ID: "github:a1:c1", AccountID: "a1", Provider: models.ProviderGitHub, Timestamp: todayStart.Add(12 * time.Hour)},
	}}
	store := newFakeStore()
	sess := session.New()

	coordinator := newCoordinator(fetcher, store, sess, 3)
	err := coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false)
	require.NoError(t, err)

	// One contiguous run covers the whole window
	require.Len(t, fetcher.calls, 1)

	// Every day in the window is recorded, empty days included
	assert.Len(t, store.rows["a1"], 3)
	for day, row := range store.rows["a1"] {
		if day == models.Today() {
			assert.Len(t, row.activities, 1)
		} else {
			assert.Empty(t, row.activities)
		}
	}

	view := sess.Snapshot()
	assert.Len(t, view.LoadedDays["a1"], 3)
	assert.Empty(t, view.LoadingDays)
	assert.False(t, view.Refreshing)
	assert.False(t, view.Offline)
	assert.False(t, view.LastRefresh.IsZero())
}

func TestWindowSourceWidensFetchRange(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	// The static fallback is narrow; the window source must win.
	coordinator := daycache.NewCoordinator(fetcher, store, sess, fixedWindow(40), testLogger(), daycache.Config{
		WindowDays:  7,
		TodayMaxAge: time.Minute,
	})
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	assert.Len(t, store.rows["a1"], 40)

	today, _ := models.ParseDay(models.Today())
	beyondFallback := models.DayOf(today.AddDate(0, 0, -35))
	_, ok := store.rows["a1"][beyondFallback]
	assert.True(t, ok, "days outside the static fallback window are still synced")

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, today.AddDate(0, 0, -39), fetcher.calls[0].from)
}

func TestWindowSourceZeroFallsBackToConfig(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	coordinator := daycache.NewCoordinator(fetcher, store, sess, fixedWindow(0), testLogger(), daycache.Config{
		WindowDays:  3,
		TodayMaxAge: time.Minute,
	})
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	assert.Len(t, store.rows["a1"], 3)
}

func TestSecondCycleOnlyRefetchesToday(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	coordinator := daycache.NewCoordinator(fetcher, store, sess, nil, testLogger(), daycache.Config{
		WindowDays: 5,
		// zero max age: today is always stale
	})

	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))
	require.Len(t, fetcher.calls, 1)

	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))
	require.Len(t, fetcher.calls, 2)

	// The second fetch covers only today
	second := fetcher.calls[1]
	todayStart, _ := models.ParseDay(models.Today())
	assert.Equal(t, todayStart, second.from)
	assert.True(t, second.to.Before(todayStart.AddDate(0, 0, 1)))
}

func TestEmptyDaysAreCachedNotRetried(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	coordinator := newCoordinator(fetcher, store, sess, 30)
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	assert.Len(t, store.rows["a1"], 30, "zero-activity days still produce index entries")

	// Freshly-fetched today is inside TodayMaxAge, so nothing is stale
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))
	assert.Len(t, fetcher.calls, 1, "no network calls when every day is fresh")
}

func TestGapInIndexFetchedAsSeparateRuns(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	// Pre-record the middle day so the window has two missing runs around it
	today, _ := models.ParseDay(models.Today())
	middle := models.DayOf(today.AddDate(0, 0, -2))
	require.NoError(t, store.SaveActivitiesForDay(context.Background(), "a1", middle, time.Now().UTC(), nil))

	coordinator := newCoordinator(fetcher, store, sess, 5)
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	assert.Len(t, fetcher.calls, 2, "one fetch per contiguous missing run")
	assert.Len(t, store.rows["a1"], 5)
}

func TestCachedDaysHydrateSession(t *testing.T) {
	today, _ := models.ParseDay(models.Today())
	yesterday := models.DayOf(today.AddDate(0, 0, -1))

	cached := []models.UnifiedActivity{{
		ID:        "github:a1:old",
		AccountID: "a1",
		Provider:  models.ProviderGitHub,
		Timestamp: today.AddDate(0, 0, -1).Add(10 * time.Hour),
	}}

	store := newFakeStore()
	require.NoError(t, store.SaveActivitiesForDay(context.Background(), "a1", yesterday, time.Now().UTC(), cached))

	fetcher := &fakeFetcher{}
	sess := session.New()

	coordinator := newCoordinator(fetcher, store, sess, 2)
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	view := sess.Snapshot()
	require.Len(t, view.Activities, 1)
	assert.Equal(t, "github:a1:old", view.Activities[0].ID)

	// Yesterday came from the store; only today was fetched
	require.Len(t, fetcher.calls, 1)
	todayStart, _ := models.ParseDay(models.Today())
	assert.Equal(t, todayStart, fetcher.calls[0].from)
}

func TestFailedAccountDoesNotStopOthers(t *testing.T) {
	store := newFakeStore()
	sess := session.New()

	fetchErr := errors.New("github is down")
	fetcher := &failByAccountFetcher{failFor: "a1", err: fetchErr}

	coordinator := newCoordinator(fetcher, store, sess, 2)
	err := coordinator.RunCycle(context.Background(), []models.Account{account("a1"), account("a2")}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)

	// The healthy account still synced
	assert.Len(t, store.rows["a2"], 2)
	assert.Empty(t, store.rows["a1"])

	view := sess.Snapshot()
	assert.Contains(t, view.LastError, "github is down")
	assert.False(t, view.Offline, "a partial cycle is not offline")
	assert.False(t, view.LastRefresh.IsZero())
}

func TestAllAccountsFailingFlipsOffline(t *testing.T) {
	store := newFakeStore()
	sess := session.New()

	fetcher := &fakeFetcher{err: errors.New("network unreachable")}

	coordinator := newCoordinator(fetcher, store, sess, 2)
	err := coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false)
	require.Error(t, err)

	view := sess.Snapshot()
	assert.True(t, view.Offline)
	assert.True(t, view.LastRefresh.IsZero(), "failed cycle never advances the refresh timestamp")
	assert.Empty(t, view.LoadingDays, "failed slots return to unknown")
}

func TestRecoveryClearsOffline(t *testing.T) {
	store := newFakeStore()
	sess := session.New()

	fetcher := &fakeFetcher{err: errors.New("network unreachable")}
	coordinator := newCoordinator(fetcher, store, sess, 2)

	require.Error(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))
	require.True(t, sess.Snapshot().Offline)

	fetcher.err = nil
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))

	view := sess.Snapshot()
	assert.False(t, view.Offline)
	assert.Empty(t, view.LastError)
}

func TestRunCycleExclusive(t *testing.T) {
	store := newFakeStore()
	sess := session.New()
	require.True(t, sess.TryBeginRefresh())

	coordinator := newCoordinator(&fakeFetcher{}, store, sess, 2)
	err := coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false)
	assert.ErrorIs(t, err, daycache.ErrRefreshInFlight)
}

func TestCycleTimeoutAbortsSlowFetch(t *testing.T) {
	fetcher := &blockingFetcher{delay: time.Hour}
	store := newFakeStore()
	sess := session.New()

	coordinator := daycache.NewCoordinator(fetcher, store, sess, nil, testLogger(), daycache.Config{
		WindowDays:   2,
		CycleTimeout: 20 * time.Millisecond,
		TodayMaxAge:  time.Minute,
	})

	err := coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	view := sess.Snapshot()
	assert.Empty(t, view.LoadingDays, "aborted slots return to unknown")
	assert.Empty(t, view.LoadedDays)

	// Once the fetcher responds in time, the same days sync normally.
	fetcher.setDelay(0)
	require.NoError(t, coordinator.RunCycle(context.Background(), []models.Account{account("a1")}, false))
	assert.Len(t, store.rows["a1"], 2)
}

func TestBackfillIgnoresCycleTimeout(t *testing.T) {
	fetcher := &blockingFetcher{delay: 60 * time.Millisecond}
	store := newFakeStore()
	sess := session.New()

	coordinator := daycache.NewCoordinator(fetcher, store, sess, nil, testLogger(), daycache.Config{
		WindowDays:   2,
		CycleTimeout: 20 * time.Millisecond,
		TodayMaxAge:  time.Minute,
	})

	require.NoError(t, coordinator.Backfill(context.Background(), account("a1"), "2026-01-05", "2026-01-05"))
	_, ok := store.rows["a1"]["2026-01-05"]
	assert.True(t, ok)
}

func TestBackfillFetchesOlderDays(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeStore()
	sess := session.New()

	coordinator := newCoordinator(fetcher, store, sess, 2)
	require.NoError(t, coordinator.Backfill(context.Background(), account("a1"), "2026-01-05", "2026-01-07"))

	require.Len(t, fetcher.calls, 1)
	assert.Len(t, store.rows["a1"], 3)
	for _, day := range []string{"2026-01-05", "2026-01-06", "2026-01-07"} {
		_, ok := store.rows["a1"][day]
		assert.True(t, ok, day)
	}
}

func TestBackfillRejectsInvertedRange(t *testing.T) {
	coordinator := newCoordinator(&fakeFetcher{}, newFakeStore(), session.New(), 2)
	err := coordinator.Backfill(context.Background(), account("a1"), "2026-01-07", "2026-01-05")
	assert.Error(t, err)
}

// blockingFetcher holds every fetch for a configurable delay, honoring the
// caller's context while it waits.
type blockingFetcher struct {
	mu    sync.Mutex
	delay time.Duration
}

func (f *blockingFetcher) setDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *blockingFetcher) FetchActivities(ctx context.Context, _ models.Account, _, _ time.Time) ([]models.UnifiedActivity, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
		return nil, nil
	}
}

// failByAccountFetcher fails fetches for one account id and succeeds for the
// rest
type failByAccountFetcher struct {
	failFor string
	err     error
}

func (f *failByAccountFetcher) FetchActivities(_ context.Context, account models.Account, _, _ time.Time) ([]models.UnifiedActivity, error) {
	if account.ID == f.failFor {
		return nil, f.err
	}
	return nil, nil
}
