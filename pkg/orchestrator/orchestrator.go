// Package orchestrator is the single place where "fetch, and recover from an
// expired token" is implemented.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/providers"
	"github.com/Ramsey-B/aster/pkg/ratelimit"
	"github.com/Ramsey-B/aster/pkg/tokens"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// ErrNoAdapter is returned when no adapter is configured for a provider
var ErrNoAdapter = errors.New("no adapter configured for provider")

// Adapters holds one adapter per provider. The set is closed; selection is an
// exhaustive switch so a new provider cannot be forgotten silently.
type Adapters struct {
	GitHub      providers.Adapter
	AzureDevOps providers.Adapter
	Calendar    providers.Adapter
}

// ForProvider returns the adapter for p
func (a Adapters) ForProvider(p models.Provider) (providers.Adapter, error) {
	switch p {
	case models.ProviderGitHub:
		if a.GitHub == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
		}
		return a.GitHub, nil
	case models.ProviderAzureDevOps:
		if a.AzureDevOps == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
		}
		return a.AzureDevOps, nil
	case models.ProviderCalendar:
		if a.Calendar == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
		}
		return a.Calendar, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
}

// Orchestrator routes fetches to the right adapter, supplies the stored
// credential, and recovers from an expired token with exactly one
// refresh-and-retry cycle.
type Orchestrator struct {
	adapters Adapters
	store    tokens.Store
	refresh  *tokens.Coordinator
	limiter  *ratelimit.Manager
	logger   ectologger.Logger
}

// New creates an orchestrator. limiter may be nil to disable cooldown
// tracking.
func New(adapters Adapters, store tokens.Store, refresh *tokens.Coordinator, limiter *ratelimit.Manager, logger ectologger.Logger) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		store:    store,
		refresh:  refresh,
		limiter:  limiter,
		logger:   logger,
	}
}

// FetchActivities fetches unified activities for the account and window,
// transparently recovering from an expired access credential
func (o *Orchestrator) FetchActivities(ctx context.Context, account models.Account, from, to time.Time) ([]models.UnifiedActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.FetchActivities")
	defer span.End()

	var result []models.UnifiedActivity
	err := o.fetch(ctx, account, func(adapter providers.Adapter, token string) error {
		activities, err := adapter.FetchActivities(ctx, account, token, from, to)
		if err != nil {
			return err
		}
		result = activities
		return nil
	})
	return result, err
}

// FetchHeatmap fetches per-day aggregate buckets for the account and window
func (o *Orchestrator) FetchHeatmap(ctx context.Context, account models.Account, from, to time.Time) ([]models.HeatMapBucket, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.FetchHeatmap")
	defer span.End()

	var result []models.HeatMapBucket
	err := o.fetch(ctx, account, func(adapter providers.Adapter, token string) error {
		buckets, err := adapter.FetchHeatmap(ctx, account, token, from, to)
		if err != nil {
			return err
		}
		result = buckets
		return nil
	})
	return result, err
}

// fetch implements the shared fetch-and-recover algorithm. The retry depth
// is bounded to one: a provider that keeps rejecting fresh tokens fails after
// the second adapter call.
func (o *Orchestrator) fetch(ctx context.Context, account models.Account, call func(providers.Adapter, string) error) error {
	if !account.Enabled {
		// Disabled accounts never reach the network
		return nil
	}

	adapter, err := o.adapters.ForProvider(account.Provider)
	if err != nil {
		return err
	}

	if o.limiter != nil {
		if ok, remaining := o.limiter.Allow(account.Provider); !ok {
			return providers.NewFetchError(providers.KindRateLimited, account,
				"provider is cooling down").WithRetryAfter(remaining)
		}
	}

	token, err := o.store.GetToken(ctx, account.ID)
	if err != nil && !errors.Is(err, tokens.ErrTokenNotFound) {
		return err
	}
	if token == "" {
		return providers.NewFetchError(providers.KindAuthenticationFailed, account, "no access credential stored")
	}

	start := time.Now()
	err = call(adapter, token)
	if err == nil {
		metrics.RecordAdapterFetch(string(account.Provider), "success", time.Since(start).Seconds())
		return nil
	}

	if !providers.IsAuthenticationFailed(err) {
		// Rate limits, network errors and decoding failures are not solved
		// by a new token
		if o.limiter != nil {
			o.limiter.NoteError(account.Provider, err)
		}
		metrics.RecordAdapterFetch(string(account.Provider), string(providers.KindOf(err)), time.Since(start).Seconds())
		return err
	}

	if !o.refresh.CanRefresh(account) {
		metrics.RecordAdapterFetch(string(account.Provider), "auth_failed", time.Since(start).Seconds())
		return err
	}

	o.logger.WithContext(ctx).Infof("access credential for %s rejected, attempting refresh", account.ID)

	newToken, refreshErr := o.refresh.RefreshToken(ctx, account)
	if refreshErr != nil {
		metrics.RecordAdapterFetch(string(account.Provider), "refresh_failed", time.Since(start).Seconds())
		return providers.WrapFetchError(providers.KindAuthenticationFailed, account,
			"token refresh failed, re-authenticate the account", refreshErr)
	}

	retryErr := call(adapter, newToken)
	if retryErr != nil {
		metrics.RecordAdapterFetch(string(account.Provider), "retry_failed", time.Since(start).Seconds())
		return retryErr
	}

	metrics.RecordAdapterFetch(string(account.Provider), "success_after_refresh", time.Since(start).Seconds())
	return nil
}
