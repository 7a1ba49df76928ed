// Package collapse groups time-adjacent similar activities for display.
package collapse

import (
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// MaxGap is the largest gap between consecutive members of a display group.
// A larger gap starts a new group.
const MaxGap = 2 * time.Hour

// Group is a run of similar activities close enough in time to display as one
type Group struct {
	// Key is the derived grouping key; empty for activities that do not group
	Key        string                   `json:"key,omitempty"`
	Activities []models.UnifiedActivity `json:"activities"`
}

// Singleton reports whether the group degraded to a single ungrouped item
func (g Group) Singleton() bool {
	return len(g.Activities) == 1
}

// GroupKey derives the display grouping key for an activity. Commits group by
// branch and project; comments and reviews group by their target and project.
// Other types never group.
func GroupKey(a models.UnifiedActivity) string {
	switch a.Type {
	case models.ActivityTypeCommit:
		if a.Branch == "" && a.Project == "" {
			return ""
		}
		return string(a.Type) + "|" + a.Branch + "|" + a.Project
	case models.ActivityTypeComment, models.ActivityTypeReview:
		if a.Target == "" && a.Project == "" {
			return ""
		}
		return string(a.Type) + "|" + a.Target + "|" + a.Project
	}
	return ""
}

// Collapse groups chronologically sorted activities that share a grouping key
// into display groups, breaking a group whenever consecutive members are more
// than MaxGap apart. Input order is preserved; activities without a key, and
// groups that end up with one member, degrade to ungrouped singletons.
func Collapse(activities []models.UnifiedActivity) []Group {
	var groups []Group

	var current *Group
	var lastTS time.Time

	flush := func() {
		if current == nil {
			return
		}
		if current.Singleton() {
			current.Key = ""
		}
		groups = append(groups, *current)
		current = nil
	}

	for _, activity := range activities {
		key := GroupKey(activity)
		if key == "" {
			flush()
			groups = append(groups, Group{Activities: []models.UnifiedActivity{activity}})
			continue
		}

		if current != nil && current.Key == key && withinGap(lastTS, activity.Timestamp) {
			current.Activities = append(current.Activities, activity)
			lastTS = activity.Timestamp
			continue
		}

		flush()
		current = &Group{Key: key, Activities: []models.UnifiedActivity{activity}}
		lastTS = activity.Timestamp
	}
	flush()

	return groups
}

func withinGap(a, b time.Time) bool {
	gap := b.Sub(a)
	if gap < 0 {
		gap = -gap
	}
	return gap <= MaxGap
}
