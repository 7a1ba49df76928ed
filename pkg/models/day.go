package models

import "time"

// DayFormat is the ISO calendar date layout used for all day keys (UTC)
const DayFormat = "2006-01-02"

// DayIndexEntry is the metadata for one (account, date) cache slot. Its
// presence means the day was fetched at least once, possibly with zero
// results; absence means never fetched.
type DayIndexEntry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
}

// HeatMapBucket is the aggregated activity count for one calendar date
type HeatMapBucket struct {
	// Date is the ISO calendar date (YYYY-MM-DD, UTC)
	Date  string `json:"date"`
	Count int    `json:"count"`

	// ByProvider breaks the count down per provider; when present the
	// bucket count equals the sum of the breakdown values
	ByProvider map[Provider]int `json:"by_provider,omitempty"`
}

// DayOf returns the UTC calendar date string for t
func DayOf(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Today returns the current UTC calendar date string
func Today() string {
	return DayOf(time.Now())
}

// ParseDay parses an ISO calendar date string
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayFormat, s, time.UTC)
}

// DayRange returns every calendar date from 'from' through 'to' inclusive,
// ascending. Both bounds are truncated to UTC days.
func DayRange(from, to time.Time) []string {
	start := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayFormat))
	}
	return days
}
