// Package ratelimit tracks provider-imposed cooldowns so a throttled
// provider is left alone until its penalty window passes.
package ratelimit

import (
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/providers"
)

// DefaultCooldown is applied when a provider throttles without telling us
// how long to wait
const DefaultCooldown = 60 * time.Second

// Manager remembers, per provider, the deadline before which no further
// requests should be sent
type Manager struct {
	logger ectologger.Logger

	mu        sync.Mutex
	blockedTo map[models.Provider]time.Time
}

// NewManager creates a new rate limit manager
func NewManager(logger ectologger.Logger) *Manager {
	return &Manager{
		logger:    logger,
		blockedTo: make(map[models.Provider]time.Time),
	}
}

// Allow reports whether the provider may be called now. When it may not, the
// remaining cooldown is returned.
func (m *Manager) Allow(provider models.Provider) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline, ok := m.blockedTo[provider]
	if !ok {
		return true, 0
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		delete(m.blockedTo, provider)
		return true, 0
	}
	return false, remaining
}

// NoteError inspects a fetch failure and records a cooldown when the
// provider throttled us. Non-throttle errors are ignored.
func (m *Manager) NoteError(provider models.Provider, err error) {
	if !providers.IsRateLimited(err) {
		return
	}

	cooldown := DefaultCooldown
	if retryAfter := providers.RetryAfterOf(err); retryAfter > 0 {
		cooldown = retryAfter
	}

	m.mu.Lock()
	deadline := time.Now().Add(cooldown)
	if deadline.After(m.blockedTo[provider]) {
		m.blockedTo[provider] = deadline
	}
	m.mu.Unlock()

	m.logger.WithFields(map[string]any{
		"provider": provider,
		"cooldown": cooldown,
	}).Warn("provider throttled, backing off")
}

// Reset clears the cooldown for a provider
func (m *Manager) Reset(provider models.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blockedTo, provider)
}
