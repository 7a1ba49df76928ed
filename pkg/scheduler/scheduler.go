// Package scheduler drives periodic refresh cycles and gates manual
// triggers behind a debounce.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

	// ErrTriggerDebounced is returned when a manual trigger lands inside the
	// debounce window of the previous cycle
	ErrTriggerDebounced = errors.New("refresh trigger debounced")
)

const (
	// DefaultInterval is the default time between automatic refresh cycles
	DefaultInterval = 5 * time.Minute

	// DefaultDebounce is the default minimum gap between manual triggers
	DefaultDebounce = 30 * time.Second
)

// Runner executes one refresh cycle over the given accounts
type Runner interface {
	RunCycle(ctx context.Context, accounts []models.Account, force bool) error
}

// AccountSource lists the accounts a cycle should cover
type AccountSource interface {
	ListEnabled(ctx context.Context) ([]models.Account, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// Interval is the time between automatic cycles; zero or negative
	// means manual triggers only
	Interval time.Duration

	// Debounce is the minimum gap between triggers. A forced trigger
	// bypasses it but still cannot overlap an in-flight cycle.
	Debounce time.Duration
}

// Scheduler runs refresh cycles on a ticker and on demand
type Scheduler struct {
	runner   Runner
	accounts AccountSource
	config   Config
	logger   ectologger.Logger

	// Coordination
	stopCh      chan struct{}
	stoppedC    chan struct{}
	running     bool
	lastTrigger time.Time
	mu          sync.Mutex
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, accounts AccountSource, config Config, logger ectologger.Logger) *Scheduler {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	return &Scheduler{
		runner:   runner,
		accounts: accounts,
		config:   config,
		logger:   logger,
	}
}

// Start starts the scheduler. With a non-positive interval no ticker runs
// and cycles happen only through Trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	interval := s.config.Interval
	s.mu.Unlock()

	if interval <= 0 {
		close(s.stoppedC)
		s.logger.WithContext(ctx).Info("Scheduler started in manual-only mode")
		return nil
	}

	go s.loop(ctx, interval)

	s.logger.WithContext(ctx).Infof("Scheduler started: interval=%s debounce=%s", interval, s.config.Debounce)
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// SetInterval restarts the scheduler on a new interval. The running loop is
// stopped first so only one ticker ever exists.
func (s *Scheduler) SetInterval(ctx context.Context, interval time.Duration) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.config.Interval = interval
	s.mu.Unlock()

	return s.Start(ctx)
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger runs one refresh cycle now. Unforced triggers inside the debounce
// window return ErrTriggerDebounced; forced triggers skip the debounce but a
// cycle already in flight still wins.
func (s *Scheduler) Trigger(ctx context.Context, force bool) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.Trigger")
	defer span.End()

	s.mu.Lock()
	if !force && time.Since(s.lastTrigger) < s.config.Debounce {
		s.mu.Unlock()
		return ErrTriggerDebounced
	}
	s.lastTrigger = time.Now()
	s.mu.Unlock()

	accounts, err := s.accounts.ListEnabled(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list accounts for refresh cycle")
		return err
	}

	return s.runner.RunCycle(ctx, accounts, force)
}

// loop runs cycles on a ticker until stopped
func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Trigger(ctx, false); err != nil {
		if errors.Is(err, ErrTriggerDebounced) {
			s.logger.WithContext(ctx).Debug("Skipping tick inside debounce window")
			return
		}
		s.logger.WithContext(ctx).WithError(err).Warn("Scheduled refresh cycle failed")
	}
}
