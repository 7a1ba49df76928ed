package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	ical "github.com/arran4/golang-ical"

	"github.com/Ramsey-B/aster/pkg/heatmap"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Calendar converts ICS subscription feeds into meeting activities. Each
// entry in the account's CalendarIDs is a feed URL; a non-empty token is sent
// as a bearer credential for feeds that require one.
type Calendar struct {
	client *httpclient.Client
	logger ectologger.Logger
}

// NewCalendar creates a calendar adapter
func NewCalendar(client *httpclient.Client, logger ectologger.Logger) *Calendar {
	return &Calendar{
		client: client,
		logger: logger,
	}
}

// FetchActivities fetches and parses every configured feed, keeping events
// that start inside the window
func (c *Calendar) FetchActivities(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.UnifiedActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "Calendar.FetchActivities")
	defer span.End()

	if err := validateWindow(account, from, to); err != nil {
		return nil, err
	}
	if len(account.CalendarIDs) == 0 {
		return nil, NewFetchError(KindConfiguration, account, "calendar account has no calendar feeds configured")
	}
	if !account.WantsType(models.ActivityTypeMeeting) {
		return nil, nil
	}

	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	var activities []models.UnifiedActivity
	for _, feedURL := range account.CalendarIDs {
		resp, err := c.client.Get(ctx, feedURL, headers)
		if err != nil {
			return nil, WrapFetchError(KindNetwork, account, "calendar feed request failed", err)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, NewFetchError(KindAuthenticationFailed, account, "calendar feed rejected the credential")
		case resp.StatusCode != http.StatusOK:
			return nil, NewFetchError(KindNetwork, account, fmt.Sprintf("calendar feed returned status %d", resp.StatusCode))
		}

		feedActivities, err := c.parseFeed(account, resp.Body, from, to)
		if err != nil {
			return nil, err
		}
		activities = append(activities, feedActivities...)
	}

	c.logger.WithContext(ctx).Debugf("calendar fetch for %s returned %d meetings", account.ID, len(activities))
	return activities, nil
}

// FetchHeatmap derives buckets by aggregating fetched activities
func (c *Calendar) FetchHeatmap(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.HeatMapBucket, error) {
	activities, err := c.FetchActivities(ctx, account, token, from, to)
	if err != nil {
		return nil, err
	}
	return heatmap.Aggregate(activities), nil
}

func (c *Calendar) parseFeed(account models.Account, body []byte, from, to time.Time) ([]models.UnifiedActivity, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, WrapFetchError(KindDecoding, account, "calendar feed is not valid ICS", err)
	}

	var activities []models.UnifiedActivity
	for _, event := range cal.Events() {
		uidProp := event.GetProperty(ical.ComponentPropertyUniqueId)
		if uidProp == nil || uidProp.Value == "" {
			continue
		}

		start, err := event.GetStartAt()
		if err != nil || !inWindow(start, from, to) {
			continue
		}

		activity := models.UnifiedActivity{
			ID:        models.ActivityID(models.ProviderCalendar, account.ID, uidProp.Value),
			Provider:  models.ProviderCalendar,
			AccountID: account.ID,
			SourceID:  uidProp.Value,
			Type:      models.ActivityTypeMeeting,
			Timestamp: start.UTC(),
		}

		if p := event.GetProperty(ical.ComponentPropertySummary); p != nil {
			activity.Title = p.Value
		}
		if p := event.GetProperty(ical.ComponentPropertyDescription); p != nil {
			activity.Summary = p.Value
		}
		for _, attendee := range event.Attendees() {
			if email := attendee.Email(); email != "" {
				activity.Participants = append(activity.Participants, email)
			}
		}

		activities = append(activities, activity)
	}

	return activities, nil
}
