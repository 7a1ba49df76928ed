// Package accounts persists the configured provider accounts and display
// preferences as a JSON file on disk.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
)

// ErrAccountNotFound is returned when the requested account id is unknown
var ErrAccountNotFound = errors.New("account not found")

// DefaultHeatmapWindowDays is the heatmap window used when preferences do
// not set one
const DefaultHeatmapWindowDays = 90

// Preferences holds display settings that ride alongside the accounts
type Preferences struct {
	HeatmapWindowDays int `json:"heatmap_window_days" validate:"omitempty,min=1,max=366"`
}

type file struct {
	Accounts    []models.Account `json:"accounts"`
	Preferences Preferences      `json:"preferences"`
}

// Store is a file-backed account store. Writes rewrite the whole file through
// a temp-file rename so a crash never leaves it half-written.
type Store struct {
	path          string
	defaultWindow int
	validate      *validator.Validate

	mu   sync.RWMutex
	data file
}

// NewStore loads the file at path, creating an empty store if it does not
// exist yet. defaultHeatmapWindow is used when preferences do not set a
// window; zero falls back to DefaultHeatmapWindowDays.
func NewStore(path string, defaultHeatmapWindow int) (*Store, error) {
	s := &Store{
		path:          path,
		defaultWindow: defaultHeatmapWindow,
		validate:      validator.New(),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("corrupt accounts file %s: %w", path, err)
	}

	for i := range s.data.Accounts {
		if err := s.validate.Struct(&s.data.Accounts[i]); err != nil {
			return nil, fmt.Errorf("invalid account %s: %w", s.data.Accounts[i].ID, err)
		}
	}
	if err := s.validate.Struct(&s.data.Preferences); err != nil {
		return nil, fmt.Errorf("invalid preferences: %w", err)
	}

	return s, nil
}

// List returns every configured account
func (s *Store) List(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Account(nil), s.data.Accounts...), nil
}

// ListEnabled returns the accounts refresh cycles should cover
func (s *Store) ListEnabled(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Account
	for _, account := range s.data.Accounts {
		if account.Enabled {
			out = append(out, account)
		}
	}
	return out, nil
}

// Get returns one account by id
func (s *Store) Get(ctx context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.data.Accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return models.Account{}, ErrAccountNotFound
}

// Upsert validates and stores an account, assigning an id when absent
func (s *Store) Upsert(ctx context.Context, account models.Account) (models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if err := s.validate.Struct(&account); err != nil {
		return models.Account{}, fmt.Errorf("invalid account: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.data.Accounts {
		if s.data.Accounts[i].ID == account.ID {
			s.data.Accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		s.data.Accounts = append(s.data.Accounts, account)
	}

	if err := s.flush(); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// Delete removes an account by id
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Accounts {
		if s.data.Accounts[i].ID == id {
			s.data.Accounts = append(s.data.Accounts[:i], s.data.Accounts[i+1:]...)
			return s.flush()
		}
	}
	return ErrAccountNotFound
}

// GetPreferences returns the stored display preferences
func (s *Store) GetPreferences(ctx context.Context) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Preferences, nil
}

// SetPreferences validates and stores the display preferences
func (s *Store) SetPreferences(ctx context.Context, prefs Preferences) error {
	if err := s.validate.Struct(&prefs); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Preferences = prefs
	return s.flush()
}

// HeatmapWindowDays returns the configured heatmap window, falling back to
// the default
func (s *Store) HeatmapWindowDays(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.Preferences.HeatmapWindowDays > 0 {
		return s.data.Preferences.HeatmapWindowDays
	}
	if s.defaultWindow > 0 {
		return s.defaultWindow
	}
	return DefaultHeatmapWindowDays
}

// flush must be called with the write lock held
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode accounts file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create accounts directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp accounts file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write accounts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close accounts file: %w", err)
	}

	return os.Rename(tmp.Name(), s.path)
}
