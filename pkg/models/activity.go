package models

import (
	"fmt"
	"sort"
	"time"
)

// TicketRef is a reference to a ticket in an issue tracking system
type TicketRef struct {
	// Key is the canonical reference (e.g. "AB#1234", "PROJ-42", "#17")
	Key string `json:"key"`

	// System names the tracking system the reference belongs to
	System string `json:"system"`

	// URL is set when the provider linked the ticket directly
	URL string `json:"url,omitempty"`
}

// UnifiedActivity is one normalized event from any provider
type UnifiedActivity struct {
	// ID is deterministic from (provider, account, source id) so re-fetching
	// the same event is idempotent
	ID        string       `json:"id"`
	Provider  Provider     `json:"provider"`
	AccountID string       `json:"account_id"`
	SourceID  string       `json:"source_id"`
	Type      ActivityType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`

	Title        string   `json:"title,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Participants []string `json:"participants,omitempty"`
	URL          string   `json:"url,omitempty"`

	// Project and Branch feed the display grouping key for commits;
	// Target does the same for comments and reviews
	Project string `json:"project,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Target  string `json:"target,omitempty"`

	Tickets []TicketRef `json:"tickets,omitempty"`
}

// ActivityID builds the globally unique activity id for a provider event
func ActivityID(provider Provider, accountID, sourceID string) string {
	return fmt.Sprintf("%s:%s:%s", provider, accountID, sourceID)
}

// Day returns the UTC calendar date of the activity
func (a UnifiedActivity) Day() string {
	return DayOf(a.Timestamp)
}

// SortActivitiesDesc sorts activities by timestamp descending in place.
// Ties break on ID so the order is stable across refreshes.
func SortActivitiesDesc(activities []UnifiedActivity) {
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].Timestamp.Equal(activities[j].Timestamp) {
			return activities[i].ID < activities[j].ID
		}
		return activities[i].Timestamp.After(activities[j].Timestamp)
	})
}
