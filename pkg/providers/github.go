package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/heatmap"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tickets"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	// DefaultGitHubBaseURL is the public GitHub REST API base
	DefaultGitHubBaseURL = "https://api.github.com"

	// githubPageSize is the events page size; GitHub caps per_page at 100
	githubPageSize = 100

	// githubMaxPages bounds pagination draining; the events API itself only
	// serves the most recent 300 events
	githubMaxPages = 10
)

// GitHub converts GitHub user event pages into unified activities
type GitHub struct {
	client  *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

// NewGitHub creates a GitHub adapter. An empty baseURL selects the public API.
func NewGitHub(client *httpclient.Client, baseURL string, logger ectologger.Logger) *GitHub {
	if baseURL == "" {
		baseURL = DefaultGitHubBaseURL
	}
	return &GitHub{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type githubEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type githubPushPayload struct {
	Ref     string `json:"ref"`
	Commits []struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
		URL     string `json:"url"`
	} `json:"commits"`
}

type githubPullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Title   string `json:"title"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
}

type githubIssuePayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	} `json:"issue"`
}

// FetchActivities drains the user events feed page by page until the window
// is covered or the feed is exhausted
func (g *GitHub) FetchActivities(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.UnifiedActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "GitHub.FetchActivities")
	defer span.End()

	if err := validateWindow(account, from, to); err != nil {
		return nil, err
	}
	if account.Login == "" {
		return nil, NewFetchError(KindConfiguration, account, "github account requires a login")
	}

	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"Authorization":        "Bearer " + token,
		"X-GitHub-Api-Version": "2022-11-28",
	}

	var activities []models.UnifiedActivity
	for page := 1; page <= githubMaxPages; page++ {
		url := fmt.Sprintf("%s/users/%s/events?per_page=%d&page=%d", g.baseURL, account.Login, githubPageSize, page)

		resp, err := g.client.Get(ctx, url, headers)
		if err != nil {
			return nil, WrapFetchError(KindNetwork, account, "github events request failed", err)
		}
		if err := g.checkStatus(resp, account); err != nil {
			return nil, err
		}

		var events []githubEvent
		if err := resp.DecodeJSON(&events); err != nil {
			return nil, WrapFetchError(KindDecoding, account, "github events response is not valid JSON", err)
		}
		if len(events) == 0 {
			break
		}

		pastWindow := false
		for _, event := range events {
			if event.CreatedAt.Before(from) {
				// The feed is newest-first; everything after this is older
				pastWindow = true
				break
			}
			activities = append(activities, g.normalize(account, event, from, to)...)
		}
		if pastWindow || len(events) < githubPageSize {
			break
		}
	}

	g.logger.WithContext(ctx).Debugf("github fetch for %s returned %d activities", account.ID, len(activities))
	return activities, nil
}

// FetchHeatmap derives buckets by aggregating fetched activities
func (g *GitHub) FetchHeatmap(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.HeatMapBucket, error) {
	activities, err := g.FetchActivities(ctx, account, token, from, to)
	if err != nil {
		return nil, err
	}
	return heatmap.Aggregate(activities), nil
}

func (g *GitHub) checkStatus(resp *httpclient.Response, account models.Account) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return NewFetchError(KindAuthenticationFailed, account, "github rejected the access token")
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		fe := NewFetchError(KindRateLimited, account, "github rate limit exceeded")
		if retryAfter := resp.Header("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				fe = fe.WithRetryAfter(time.Duration(seconds) * time.Second)
			}
		}
		return fe
	}
	return NewFetchError(KindNetwork, account, fmt.Sprintf("github returned status %d", resp.StatusCode))
}

// normalize converts one feed event into zero or more unified activities,
// applying the window and the account's type filter
func (g *GitHub) normalize(account models.Account, event githubEvent, from, to time.Time) []models.UnifiedActivity {
	if !inWindow(event.CreatedAt, from, to) {
		return nil
	}

	switch event.Type {
	case "PushEvent":
		return g.normalizePush(account, event)
	case "PullRequestEvent":
		return g.normalizePullRequest(account, event)
	case "IssuesEvent":
		return g.normalizeIssue(account, event, models.ActivityTypeIssue)
	case "IssueCommentEvent":
		return g.normalizeIssue(account, event, models.ActivityTypeComment)
	case "PullRequestReviewEvent":
		return g.normalizeReview(account, event)
	}
	return nil
}

func (g *GitHub) normalizePush(account models.Account, event githubEvent) []models.UnifiedActivity {
	if !account.WantsType(models.ActivityTypeCommit) {
		return nil
	}

	var payload githubPushPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		g.logger.WithError(err).Warnf("skipping undecodable push payload in event %s", event.ID)
		return nil
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")

	var activities []models.UnifiedActivity
	for _, commit := range payload.Commits {
		activities = append(activities, models.UnifiedActivity{
			ID:        models.ActivityID(models.ProviderGitHub, account.ID, commit.SHA),
			Provider:  models.ProviderGitHub,
			AccountID: account.ID,
			SourceID:  commit.SHA,
			Type:      models.ActivityTypeCommit,
			Timestamp: event.CreatedAt,
			Title:     firstLine(commit.Message),
			URL:       commit.URL,
			Project:   event.Repo.Name,
			Branch:    branch,
			Tickets:   tickets.Extract(branch, commit.Message),
		})
	}
	return activities
}

func (g *GitHub) normalizePullRequest(account models.Account, event githubEvent) []models.UnifiedActivity {
	if !account.WantsType(models.ActivityTypePullRequest) {
		return nil
	}

	var payload githubPullRequestPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		g.logger.WithError(err).Warnf("skipping undecodable pull request payload in event %s", event.ID)
		return nil
	}

	extracted := tickets.Extract(payload.PullRequest.Head.Ref, payload.PullRequest.Title, payload.PullRequest.Body)
	linked := []models.TicketRef{{
		Key:    fmt.Sprintf("#%d", payload.Number),
		System: tickets.SystemGeneric,
		URL:    payload.PullRequest.HTMLURL,
	}}

	return []models.UnifiedActivity{{
		ID:        models.ActivityID(models.ProviderGitHub, account.ID, event.ID),
		Provider:  models.ProviderGitHub,
		AccountID: account.ID,
		SourceID:  event.ID,
		Type:      models.ActivityTypePullRequest,
		Timestamp: event.CreatedAt,
		Title:     payload.PullRequest.Title,
		Summary:   payload.Action,
		URL:       payload.PullRequest.HTMLURL,
		Project:   event.Repo.Name,
		Branch:    payload.PullRequest.Head.Ref,
		Tickets:   tickets.Merge(extracted, linked),
	}}
}

func (g *GitHub) normalizeIssue(account models.Account, event githubEvent, activityType models.ActivityType) []models.UnifiedActivity {
	if !account.WantsType(activityType) {
		return nil
	}

	var payload githubIssuePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		g.logger.WithError(err).Warnf("skipping undecodable issue payload in event %s", event.ID)
		return nil
	}

	target := fmt.Sprintf("%s#%d", event.Repo.Name, payload.Issue.Number)
	extracted := tickets.Extract(payload.Issue.Title, payload.Issue.Body)
	linked := []models.TicketRef{{
		Key:    fmt.Sprintf("#%d", payload.Issue.Number),
		System: tickets.SystemGeneric,
		URL:    payload.Issue.HTMLURL,
	}}

	return []models.UnifiedActivity{{
		ID:        models.ActivityID(models.ProviderGitHub, account.ID, event.ID),
		Provider:  models.ProviderGitHub,
		AccountID: account.ID,
		SourceID:  event.ID,
		Type:      activityType,
		Timestamp: event.CreatedAt,
		Title:     payload.Issue.Title,
		Summary:   payload.Action,
		URL:       payload.Issue.HTMLURL,
		Project:   event.Repo.Name,
		Target:    target,
		Tickets:   tickets.Merge(extracted, linked),
	}}
}

func (g *GitHub) normalizeReview(account models.Account, event githubEvent) []models.UnifiedActivity {
	if !account.WantsType(models.ActivityTypeReview) {
		return nil
	}

	var payload githubPullRequestPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		g.logger.WithError(err).Warnf("skipping undecodable review payload in event %s", event.ID)
		return nil
	}

	target := fmt.Sprintf("%s#%d", event.Repo.Name, payload.Number)

	return []models.UnifiedActivity{{
		ID:        models.ActivityID(models.ProviderGitHub, account.ID, event.ID),
		Provider:  models.ProviderGitHub,
		AccountID: account.ID,
		SourceID:  event.ID,
		Type:      models.ActivityTypeReview,
		Timestamp: event.CreatedAt,
		Title:     payload.PullRequest.Title,
		Summary:   payload.Action,
		URL:       payload.PullRequest.HTMLURL,
		Project:   event.Repo.Name,
		Target:    target,
		Tickets:   tickets.Extract(payload.PullRequest.Head.Ref, payload.PullRequest.Title),
	}}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
