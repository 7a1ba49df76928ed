// Package daycache owns the day-indexed activity cache: a sqlite-backed day
// store plus the coordinator that decides which calendar days each refresh
// cycle needs to fetch.
package daycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const activityDaysTable = "activity_days"

// DayStore persists fetched activity keyed by (account, calendar date). A row
// with count zero is a positive record that the day was fetched and empty.
type DayStore interface {
	// LoadDayIndex returns every recorded day for the account
	LoadDayIndex(ctx context.Context, accountID string) (map[string]models.DayIndexEntry, error)
	// LoadActivitiesForDay returns the cached activities for one day; a day
	// with no row returns an empty slice and false
	LoadActivitiesForDay(ctx context.Context, accountID, day string) ([]models.UnifiedActivity, bool, error)
	// SaveActivitiesForDay overwrites the row for one day
	SaveActivitiesForDay(ctx context.Context, accountID, day string, fetchedAt time.Time, activities []models.UnifiedActivity) error
}

// SQLiteStore is the sqlite-backed DayStore
type SQLiteStore struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewSQLiteStore migrates the schema and returns a store over db
func NewSQLiteStore(db *sqlx.DB, logger ectologger.Logger) (*SQLiteStore, error) {
	if err := migrate(db.DB); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// LoadDayIndex returns the fetched-at timestamp and activity count for every
// day the account has ever recorded
func (s *SQLiteStore) LoadDayIndex(ctx context.Context, accountID string) (map[string]models.DayIndexEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "SQLiteStore.LoadDayIndex")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("day", "fetched_at", "count").
		From(activityDaysTable).
		Where(sb.Equal("account_id", accountID))

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load day index: %w", err)
	}
	defer rows.Close()

	index := make(map[string]models.DayIndexEntry)
	for rows.Next() {
		var (
			day       string
			fetchedAt string
			count     int
		)
		if err := rows.Scan(&day, &fetchedAt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan day index row: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid fetched_at for day %s: %w", day, err)
		}
		index[day] = models.DayIndexEntry{FetchedAt: at, Count: count}
	}
	return index, rows.Err()
}

// LoadActivitiesForDay returns the cached payload for one (account, day) row
func (s *SQLiteStore) LoadActivitiesForDay(ctx context.Context, accountID, day string) ([]models.UnifiedActivity, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "SQLiteStore.LoadActivitiesForDay")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("payload").
		From(activityDaysTable).
		Where(sb.Equal("account_id", accountID), sb.Equal("day", day))

	query, args := sb.Build()

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load day %s: %w", day, err)
	}

	activities := []models.UnifiedActivity{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &activities); err != nil {
			return nil, false, fmt.Errorf("corrupt payload for day %s: %w", day, err)
		}
	}
	return activities, true, nil
}

// SaveActivitiesForDay overwrites the row for one day. An empty slice is
// persisted the same way as a populated one so the day reads back as fetched.
func (s *SQLiteStore) SaveActivitiesForDay(ctx context.Context, accountID, day string, fetchedAt time.Time, activities []models.UnifiedActivity) error {
	ctx, span := tracing.StartSpan(ctx, "SQLiteStore.SaveActivitiesForDay")
	defer span.End()

	if activities == nil {
		activities = []models.UnifiedActivity{}
	}
	payload, err := json.Marshal(activities)
	if err != nil {
		return fmt.Errorf("failed to encode day %s: %w", day, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (account_id, day, fetched_at, count, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, day) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			count = excluded.count,
			payload = excluded.payload`, activityDaysTable)

	_, err = s.db.ExecContext(ctx, query,
		accountID, day, fetchedAt.UTC().Format(time.RFC3339Nano), len(activities), payload)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_id": accountID,
			"day":        day,
		}).Error("failed to save day")
		return fmt.Errorf("failed to save day %s: %w", day, err)
	}
	return nil
}

// schemaVersion is the latest schema version supported by the migrator
const schemaVersion = 1

func migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	transaction, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS activity_days (
			account_id TEXT NOT NULL,
			day TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			count INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (account_id, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create activity_days table: %w", err)
	}

	_, err = transaction.Exec(`CREATE INDEX IF NOT EXISTS idx_activity_days_day ON activity_days(day);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_activity_days_day: %w", err)
	}

	_, err = transaction.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, schemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err = transaction.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
