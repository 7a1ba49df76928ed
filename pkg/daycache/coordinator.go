package daycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/session"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// ErrRefreshInFlight is returned when a cycle is requested while another is
// still running
var ErrRefreshInFlight = errors.New("a refresh cycle is already in flight")

// Fetcher fetches normalized activity for one account over a time window
type Fetcher interface {
	FetchActivities(ctx context.Context, account models.Account, from, to time.Time) ([]models.UnifiedActivity, error)
}

// WindowSource supplies the visible heatmap window in days. The refresh
// cycle keeps exactly that range warm, so raising the preference widens the
// next cycle's fetch range.
type WindowSource interface {
	HeatmapWindowDays(ctx context.Context) int
}

// Config holds the coordinator's tunables
type Config struct {
	// WindowDays is the rolling window a cycle keeps warm, counted back
	// from today inclusive. Only consulted when no WindowSource is wired.
	WindowDays int
	// CycleTimeout bounds one full refresh cycle; zero disables the bound
	CycleTimeout time.Duration
	// TodayMaxAge damps how often today's row is re-fetched. Zero means
	// today is stale on every cycle. Past days never expire; any recorded
	// row, including an empty one, is permanently fresh.
	TodayMaxAge time.Duration
}

// Coordinator decides, per account and per calendar day, whether a refresh
// cycle hits the network or serves the day store. Days load at most once per
// run; a slot mid-load is never requested again.
type Coordinator struct {
	fetcher Fetcher
	store   DayStore
	sess    *session.Session
	windows WindowSource
	logger  ectologger.Logger
	config  Config
}

// NewCoordinator creates a coordinator over the given fetcher and store. A
// nil windows falls back to the static Config.WindowDays.
func NewCoordinator(fetcher Fetcher, store DayStore, sess *session.Session, windows WindowSource, logger ectologger.Logger, config Config) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		store:   store,
		sess:    sess,
		windows: windows,
		logger:  logger,
		config:  config,
	}
}

// RunCycle refreshes the rolling window for every enabled account. One
// account failing does not stop the others; the first failure is recorded on
// the session and returned. Only a cycle where every account fails flips the
// session offline.
func (c *Coordinator) RunCycle(ctx context.Context, accounts []models.Account, force bool) error {
	ctx, span := tracing.StartSpan(ctx, "Coordinator.RunCycle")
	defer span.End()

	if !c.sess.TryBeginRefresh() {
		return ErrRefreshInFlight
	}

	if c.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CycleTimeout)
		defer cancel()
	}

	started := time.Now()

	var firstErr error
	anySuccess := false
	for _, account := range accounts {
		if !account.Enabled {
			continue
		}

		if err := c.syncAccount(ctx, account, force); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"account_id": account.ID,
				"provider":   account.Provider,
			}).Error("account refresh failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		anySuccess = true
	}

	message := ""
	status := "success"
	if firstErr != nil {
		message = firstErr.Error()
		status = "partial"
		if !anySuccess {
			status = "failure"
		}
	}
	c.sess.FinishCycle(message, anySuccess)
	metrics.RecordRefreshCycle(status, time.Since(started).Seconds())

	return firstErr
}

// Backfill fetches a day range older than the rolling window for one
// account. It runs outside any cycle timeout; already-recorded days are
// hydrated from the store instead of re-fetched.
func (c *Coordinator) Backfill(ctx context.Context, account models.Account, from, to string) error {
	ctx, span := tracing.StartSpan(ctx, "Coordinator.Backfill")
	defer span.End()

	fromT, err := models.ParseDay(from)
	if err != nil {
		return fmt.Errorf("invalid backfill start day %q: %w", from, err)
	}
	toT, err := models.ParseDay(to)
	if err != nil {
		return fmt.Errorf("invalid backfill end day %q: %w", to, err)
	}
	if fromT.After(toT) {
		return fmt.Errorf("backfill start day %s is after end day %s", from, to)
	}

	index, err := c.store.LoadDayIndex(ctx, account.ID)
	if err != nil {
		return err
	}
	return c.syncDays(ctx, account, index, models.DayRange(fromT, toT), false)
}

func (c *Coordinator) syncAccount(ctx context.Context, account models.Account, force bool) error {
	index, err := c.store.LoadDayIndex(ctx, account.ID)
	if err != nil {
		return err
	}

	today, _ := models.ParseDay(models.Today())
	start := today.AddDate(0, 0, -(c.windowDays(ctx) - 1))

	return c.syncDays(ctx, account, index, models.DayRange(start, today), force)
}

// windowDays resolves the cycle window from the heatmap preference, so the
// synced range always covers what the panel displays
func (c *Coordinator) windowDays(ctx context.Context) int {
	if c.windows != nil {
		if days := c.windows.HeatmapWindowDays(ctx); days > 0 {
			return days
		}
	}
	return c.config.WindowDays
}

// syncDays hydrates recorded days into the session and fetches the rest in
// contiguous runs
func (c *Coordinator) syncDays(ctx context.Context, account models.Account, index map[string]models.DayIndexEntry, days []string, force bool) error {
	today := models.Today()

	var missing []string
	for _, day := range days {
		if c.needsFetch(index, day, today == day, force) {
			missing = append(missing, day)
			continue
		}
		if err := c.hydrate(ctx, account, day); err != nil {
			return err
		}
	}

	for _, run := range contiguousRuns(missing) {
		if err := c.fetchRun(ctx, account, run); err != nil {
			return err
		}
	}
	return nil
}

// needsFetch reports whether a day has to hit the network. Any recorded day
// is fresh except today, which is stale on every cycle unless TodayMaxAge
// grants it a grace period.
func (c *Coordinator) needsFetch(index map[string]models.DayIndexEntry, day string, isToday, force bool) bool {
	entry, ok := index[day]
	if !ok {
		return true
	}
	if !isToday {
		return false
	}
	if force || c.config.TodayMaxAge <= 0 {
		return true
	}
	return time.Since(entry.FetchedAt) > c.config.TodayMaxAge
}

// hydrate fills the session slot from the day store without a network call
func (c *Coordinator) hydrate(ctx context.Context, account models.Account, day string) error {
	if c.sess.IsLoaded(account.ID, day) {
		return nil
	}

	activities, ok, err := c.store.LoadActivitiesForDay(ctx, account.ID, day)
	if err != nil {
		return err
	}
	if !ok {
		// the index said the day exists; treat a vanished row as missing
		// rather than failing the account
		return nil
	}

	c.sess.ReplaceDay(account.ID, day, activities)
	metrics.DaysServedFromCache.Inc()
	return nil
}

// fetchRun fetches one contiguous day run in a single adapter call and writes
// every day in the run, empty days included, so future cycles skip them
func (c *Coordinator) fetchRun(ctx context.Context, account models.Account, run []string) error {
	var owned []string
	for _, day := range run {
		if c.sess.BeginDay(account.ID, day) {
			owned = append(owned, day)
		}
	}
	if len(owned) == 0 {
		return nil
	}

	release := func() {
		for _, day := range owned {
			c.sess.FailDay(account.ID, day)
		}
	}

	from, _ := models.ParseDay(run[0])
	end, _ := models.ParseDay(run[len(run)-1])
	to := end.Add(24*time.Hour - time.Nanosecond)

	activities, err := c.fetcher.FetchActivities(ctx, account, from, to)
	if err != nil {
		release()
		return err
	}

	byDay := make(map[string][]models.UnifiedActivity)
	for _, activity := range activities {
		day := activity.Day()
		byDay[day] = append(byDay[day], activity)
	}

	now := time.Now().UTC()
	for i, day := range owned {
		if err := c.store.SaveActivitiesForDay(ctx, account.ID, day, now, byDay[day]); err != nil {
			for _, unsaved := range owned[i:] {
				c.sess.FailDay(account.ID, unsaved)
			}
			return err
		}
		c.sess.ReplaceDay(account.ID, day, byDay[day])
		metrics.DaysFetchedTotal.WithLabelValues(string(account.Provider)).Inc()
	}
	return nil
}

// contiguousRuns splits an ascending day list into runs of consecutive
// calendar dates
func contiguousRuns(days []string) [][]string {
	var runs [][]string
	for _, day := range days {
		if len(runs) > 0 {
			last := runs[len(runs)-1]
			prev, _ := models.ParseDay(last[len(last)-1])
			if models.DayOf(prev.AddDate(0, 0, 1)) == day {
				runs[len(runs)-1] = append(last, day)
				continue
			}
		}
		runs = append(runs, []string{day})
	}
	return runs
}
