// Package tokens owns credential storage and OAuth refresh-token exchange.
package tokens

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/redis"
)

// RefreshSuffix is appended to an account id to key its refresh credential
const RefreshSuffix = ":refresh"

// ErrTokenNotFound is returned when no credential is stored for an account
var ErrTokenNotFound = errors.New("no credential stored for account")

// Store is the credential vault interface. Refresh credentials live under
// the "<accountID>:refresh" key.
type Store interface {
	// GetToken returns the stored credential for the key, or ErrTokenNotFound
	GetToken(ctx context.Context, accountID string) (string, error)

	// SetToken persists a credential under the key
	SetToken(ctx context.Context, token, accountID string) error
}

// RefreshKey returns the credential key for an account's refresh token
func RefreshKey(accountID string) string {
	return accountID + RefreshSuffix
}

const credentialKeyPrefix = "aster:credentials:"

// RedisStore is a redis-backed credential store
type RedisStore struct {
	client *redis.Client
	logger ectologger.Logger
}

// NewRedisStore creates a redis-backed credential store
func NewRedisStore(client *redis.Client, logger ectologger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// GetToken retrieves a credential
func (s *RedisStore) GetToken(ctx context.Context, accountID string) (string, error) {
	value, err := s.client.Get(ctx, credentialKeyPrefix+accountID)
	if errors.Is(err, redis.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	return value, err
}

// SetToken persists a credential. Credentials never expire on their own;
// rotation happens through refresh exchanges.
func (s *RedisStore) SetToken(ctx context.Context, token, accountID string) error {
	if err := s.client.Set(ctx, credentialKeyPrefix+accountID, token, 0); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Debugf("stored credential for %s", accountID)
	return nil
}
