// Package providers converts provider-native API responses into the unified
// activity shape. Adapters are stateless: they drain pagination, scope
// results to the requested window, and never touch any cache.
package providers

import (
	"context"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Adapter fetches activity data for a single account and time window
type Adapter interface {
	// FetchActivities returns every unified activity for the account in
	// [from, to], with provider pagination fully drained
	FetchActivities(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.UnifiedActivity, error)

	// FetchHeatmap returns per-day aggregate buckets for the window. Adapters
	// without a native aggregate endpoint derive it from FetchActivities.
	FetchHeatmap(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.HeatMapBucket, error)
}

// validateWindow checks the shared adapter input contract
func validateWindow(account models.Account, from, to time.Time) error {
	if !account.Enabled {
		return NewFetchError(KindConfiguration, account, "account is disabled")
	}
	if from.After(to) {
		return NewFetchError(KindConfiguration, account, "window start is after window end")
	}
	return nil
}

// inWindow reports whether ts falls inside [from, to]
func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
