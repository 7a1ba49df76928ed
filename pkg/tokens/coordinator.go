package tokens

import (
	"context"
	"errors"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/providers"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// refreshCall is the shared state for one in-flight refresh. Waiters block on
// done and then read token/err; both are written exactly once before done is
// closed.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator exchanges stored refresh credentials for new access
// credentials, guaranteeing at most one in-flight exchange per account id.
// Concurrent callers for the same account suspend and share the in-flight
// attempt's outcome instead of starting a second network exchange.
type Coordinator struct {
	store     Store
	exchanger Exchanger
	logger    ectologger.Logger

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

// NewCoordinator creates a token refresh coordinator
func NewCoordinator(store Store, exchanger Exchanger, logger ectologger.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		exchanger: exchanger,
		logger:    logger,
		inflight:  make(map[string]*refreshCall),
	}
}

// CanRefresh reports whether the account's credentials can be refreshed:
// only OAuth accounts whose provider supports refresh-token exchange.
func (c *Coordinator) CanRefresh(account models.Account) bool {
	return account.AuthMethod == models.AuthMethodOAuth && account.Provider.SupportsRefresh()
}

// RefreshToken returns a new access credential for the account. If a refresh
// for the same account is already in flight the caller waits for it and
// receives the same outcome. On success both the new access credential and,
// when the provider rotated it, the new refresh credential are persisted
// before returning.
func (c *Coordinator) RefreshToken(ctx context.Context, account models.Account) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "TokenCoordinator.RefreshToken")
	defer span.End()

	if !c.CanRefresh(account) {
		return "", providers.NewFetchError(providers.KindConfiguration, account, "provider does not support token refresh")
	}

	c.mu.Lock()
	if call, ok := c.inflight[account.ID]; ok {
		c.mu.Unlock()
		metrics.TokenRefreshWaiters.Inc()
		c.logger.WithContext(ctx).Debugf("waiting on in-flight token refresh for %s", account.ID)

		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight[account.ID] = call
	c.mu.Unlock()

	call.token, call.err = c.refresh(ctx, account)

	c.mu.Lock()
	delete(c.inflight, account.ID)
	c.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

// refresh performs the actual exchange and persistence for one attempt
func (c *Coordinator) refresh(ctx context.Context, account models.Account) (string, error) {
	refreshToken, err := c.store.GetToken(ctx, RefreshKey(account.ID))
	if err != nil || refreshToken == "" {
		if err != nil && !errors.Is(err, ErrTokenNotFound) {
			return "", err
		}
		metrics.RecordTokenRefresh(string(account.Provider), "no_credential")
		return "", providers.NewFetchError(providers.KindAuthenticationFailed, account, "no refresh credential stored")
	}

	pair, err := c.exchanger.Exchange(ctx, account, refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh(string(account.Provider), "failed")
		if errors.Is(err, ErrExchangeRejected) {
			return "", providers.WrapFetchError(providers.KindAuthenticationFailed, account, "refresh credential was rejected", err)
		}
		return "", providers.WrapFetchError(providers.KindNetwork, account, "token exchange failed", err)
	}

	if err := c.store.SetToken(ctx, pair.AccessToken, account.ID); err != nil {
		metrics.RecordTokenRefresh(string(account.Provider), "persist_failed")
		return "", err
	}
	if pair.RefreshToken != "" {
		if err := c.store.SetToken(ctx, pair.RefreshToken, RefreshKey(account.ID)); err != nil {
			metrics.RecordTokenRefresh(string(account.Provider), "persist_failed")
			return "", err
		}
	}

	metrics.RecordTokenRefresh(string(account.Provider), "success")
	c.logger.WithContext(ctx).Infof("refreshed access credential for account %s", account.ID)
	return pair.AccessToken, nil
}
