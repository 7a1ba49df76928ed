// Package session holds the in-memory per-run view of synced activity
// consumed by the display layer. All mutable state lives behind one monitor;
// readers get copies, never live references.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/aster/pkg/heatmap"
	"github.com/Ramsey-B/aster/pkg/models"
)

// View is an immutable snapshot of the session for the display layer
type View struct {
	// Activities is the merged collection across accounts, timestamp descending
	Activities []models.UnifiedActivity `json:"activities"`

	// Heatmap holds one bucket per calendar date, ascending
	Heatmap []models.HeatMapBucket `json:"heatmap"`

	// LoadedDays and LoadingDays are keyed by account id
	LoadedDays  map[string][]string `json:"loaded_days"`
	LoadingDays map[string][]string `json:"loading_days"`

	// LastRefresh is the time of the last successful refresh cycle; it is
	// preserved across failed cycles so stale data stays attributable
	LastRefresh time.Time `json:"last_refresh"`

	// LastError is the first failing account's message from the most recent
	// cycle, empty when the cycle was clean
	LastError string `json:"last_error,omitempty"`

	// Offline is set when the most recent cycle failed for every account and
	// cleared by the next cycle with any success
	Offline bool `json:"offline"`

	Refreshing bool `json:"refreshing"`
}

// Session is the engine's shared mutable state
type Session struct {
	mu sync.RWMutex

	// byAccountDay is the source for the derived merged list and heatmap
	byAccountDay map[string]map[string][]models.UnifiedActivity

	merged  []models.UnifiedActivity
	buckets []models.HeatMapBucket

	loaded  map[string]map[string]bool
	loading map[string]map[string]bool

	lastRefresh time.Time
	lastError   string
	offline     bool
	refreshing  bool

	subscribers []chan struct{}
}

// New creates an empty session
func New() *Session {
	return &Session{
		byAccountDay: make(map[string]map[string][]models.UnifiedActivity),
		loaded:       make(map[string]map[string]bool),
		loading:      make(map[string]map[string]bool),
	}
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals are collapsed: a slow consumer sees at least one signal
// for any burst of changes.
func (s *Session) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// notify must be called with the lock held
func (s *Session) notify() {
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// BeginDay marks the (account, day) slot loading. It returns false if the
// slot is already loading: the slot is exclusive and a second request is a
// no-op for the caller.
func (s *Session) BeginDay(accountID, day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading[accountID][day] {
		return false
	}
	if s.loading[accountID] == nil {
		s.loading[accountID] = make(map[string]bool)
	}
	s.loading[accountID][day] = true
	s.notify()
	return true
}

// FailDay returns a loading slot to the unknown state so the next cycle can
// retry it
func (s *Session) FailDay(accountID, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.loading[accountID], day)
	s.notify()
}

// ReplaceDay installs the activities for one (account, day) slot and marks it
// loaded. A repeat call for the same slot replaces the previous contents
// rather than accumulating; the merged view and heatmap are rebuilt.
func (s *Session) ReplaceDay(accountID, day string, activities []models.UnifiedActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byAccountDay[accountID] == nil {
		s.byAccountDay[accountID] = make(map[string][]models.UnifiedActivity)
	}
	s.byAccountDay[accountID][day] = append([]models.UnifiedActivity(nil), activities...)

	if s.loaded[accountID] == nil {
		s.loaded[accountID] = make(map[string]bool)
	}
	s.loaded[accountID][day] = true
	delete(s.loading[accountID], day)

	s.rebuild()
	s.notify()
}

// IsLoaded reports whether the slot holds fetched data this run
func (s *Session) IsLoaded(accountID, day string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[accountID][day]
}

// TryBeginRefresh marks the session refreshing; false if a cycle is already
// in flight
func (s *Session) TryBeginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshing {
		return false
	}
	s.refreshing = true
	s.notify()
	return true
}

// FinishCycle records a cycle outcome. anySuccess means at least one day for
// at least one account was fetched; only a cycle with no successes at all
// flips the session offline. The last successful refresh timestamp survives
// failed cycles.
func (s *Session) FinishCycle(firstError string, anySuccess bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshing = false
	s.lastError = firstError

	if anySuccess {
		s.lastRefresh = time.Now().UTC()
		s.offline = false
	} else if firstError != "" {
		s.offline = true
	}

	s.notify()
}

// Snapshot returns a copy of the current session state
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := View{
		Activities:  append([]models.UnifiedActivity(nil), s.merged...),
		Heatmap:     append([]models.HeatMapBucket(nil), s.buckets...),
		LoadedDays:  daySets(s.loaded),
		LoadingDays: daySets(s.loading),
		LastRefresh: s.lastRefresh,
		LastError:   s.lastError,
		Offline:     s.offline,
		Refreshing:  s.refreshing,
	}
	return view
}

// ActivitiesForDay returns the merged activities for one calendar date
func (s *Session) ActivitiesForDay(day string) []models.UnifiedActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UnifiedActivity
	for _, activity := range s.merged {
		if activity.Day() == day {
			out = append(out, activity)
		}
	}
	return out
}

// rebuild recomputes the merged list and heatmap; must be called with the
// lock held
func (s *Session) rebuild() {
	var merged []models.UnifiedActivity
	for _, days := range s.byAccountDay {
		for _, activities := range days {
			merged = append(merged, activities...)
		}
	}
	models.SortActivitiesDesc(merged)

	s.merged = merged
	s.buckets = heatmap.Aggregate(merged)
}

func daySets(source map[string]map[string]bool) map[string][]string {
	out := make(map[string][]string, len(source))
	for accountID, days := range source {
		if len(days) == 0 {
			continue
		}
		list := make([]string, 0, len(days))
		for day := range days {
			list = append(list, day)
		}
		sort.Strings(list)
		out[accountID] = list
	}
	return out
}
