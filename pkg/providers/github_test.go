package providers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/providers"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newGitHub(t *testing.T, handler http.HandlerFunc) *providers.GitHub {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := httpclient.NewClient(httpclient.DefaultConfig(), testLogger())
	return providers.NewGitHub(client, server.URL, testLogger())
}

func githubAccount() models.Account {
	return models.Account{
		ID:         "acct-1",
		Provider:   models.ProviderGitHub,
		AuthMethod: models.AuthMethodOAuth,
		Enabled:    true,
		Login:      "octocat",
	}
}

func eventJSON(id, eventType string, createdAt time.Time, payload any) map[string]any {
	raw, _ := json.Marshal(payload)
	return map[string]any{
		"id":         id,
		"type":       eventType,
		"repo":       map[string]string{"name": "octocat/aster"},
		"payload":    json.RawMessage(raw),
		"created_at": createdAt.Format(time.RFC3339),
	}
}

func TestGitHubFetchNormalizesPushCommits(t *testing.T) {
	created := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)

	var gotPath, gotAuth string
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		events := []map[string]any{
			eventJSON("1", "PushEvent", created, map[string]any{
				"ref": "refs/heads/feature/PROJ-42-cache",
				"commits": []map[string]string{
					{"sha": "sha-a", "message": "PROJ-42 add cache\n\nlong body"},
					{"sha": "sha-b", "message": "tidy"},
				},
			}),
		}
		json.NewEncoder(w).Encode(events)
	})

	from := created.Add(-time.Hour)
	to := created.Add(time.Hour)
	activities, err := adapter.FetchActivities(context.Background(), githubAccount(), "token-1", from, to)
	require.NoError(t, err)

	assert.Equal(t, "/users/octocat/events", gotPath)
	assert.Equal(t, "Bearer token-1", gotAuth)

	require.Len(t, activities, 2)
	first := activities[0]
	assert.Equal(t, "github:acct-1:sha-a", first.ID)
	assert.Equal(t, models.ActivityTypeCommit, first.Type)
	assert.Equal(t, "PROJ-42 add cache", first.Title, "only the first message line becomes the title")
	assert.Equal(t, "feature/PROJ-42-cache", first.Branch)
	assert.Equal(t, "octocat/aster", first.Project)
	require.NotEmpty(t, first.Tickets)
	assert.Equal(t, "PROJ-42", first.Tickets[0].Key)

	assert.Equal(t, "github:acct-1:sha-b", activities[1].ID)
}

func TestGitHubFetchScopesToWindow(t *testing.T) {
	inside := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	after := inside.Add(48 * time.Hour)

	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		events := []map[string]any{
			// newest-first feed: too-new first, then in-window
			eventJSON("2", "PullRequestEvent", after, map[string]any{
				"number":       7,
				"pull_request": map[string]any{"title": "too new"},
			}),
			eventJSON("1", "PullRequestEvent", inside, map[string]any{
				"number":       6,
				"pull_request": map[string]any{"title": "in window"},
			}),
		}
		json.NewEncoder(w).Encode(events)
	})

	from := inside.Add(-time.Hour)
	to := inside.Add(time.Hour)
	activities, err := adapter.FetchActivities(context.Background(), githubAccount(), "t", from, to)
	require.NoError(t, err)

	require.Len(t, activities, 1)
	assert.Equal(t, "in window", activities[0].Title)
}

func TestGitHubFetchStopsAtEventsOlderThanWindow(t *testing.T) {
	var pages int
	old := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		// A full page whose last event predates the window must stop paging
		events := make([]map[string]any, 0, 100)
		for i := 0; i < 100; i++ {
			events = append(events, eventJSON(fmt.Sprintf("%d", i), "PushEvent", old, map[string]any{}))
		}
		json.NewEncoder(w).Encode(events)
	})

	from := old.AddDate(0, 0, 5)
	to := old.AddDate(0, 0, 6)
	_, err := adapter.FetchActivities(context.Background(), githubAccount(), "t", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, pages, "paging stops once the feed is older than the window")
}

func TestGitHubUnauthorized(t *testing.T) {
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := adapter.FetchActivities(context.Background(), githubAccount(), "bad", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, providers.IsAuthenticationFailed(err))
}

func TestGitHubRateLimitedCarriesRetryAfter(t *testing.T) {
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := adapter.FetchActivities(context.Background(), githubAccount(), "t", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, providers.IsRateLimited(err))
	assert.Equal(t, 2*time.Minute, providers.RetryAfterOf(err))
}

func TestGitHubDecodingError(t *testing.T) {
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})

	_, err := adapter.FetchActivities(context.Background(), githubAccount(), "t", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Equal(t, providers.KindDecoding, providers.KindOf(err))
}

func TestGitHubRequiresLogin(t *testing.T) {
	called := false
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	account := githubAccount()
	account.Login = ""
	_, err := adapter.FetchActivities(context.Background(), account, "t", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, providers.IsConfiguration(err))
	assert.False(t, called)
}

func TestGitHubRejectsInvertedWindow(t *testing.T) {
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {})

	now := time.Now()
	_, err := adapter.FetchActivities(context.Background(), githubAccount(), "t", now, now.Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, providers.IsConfiguration(err))
}

func TestGitHubTypeFilter(t *testing.T) {
	created := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		events := []map[string]any{
			eventJSON("1", "PushEvent", created, map[string]any{
				"ref":     "refs/heads/main",
				"commits": []map[string]string{{"sha": "sha-a", "message": "m"}},
			}),
			eventJSON("2", "IssuesEvent", created, map[string]any{
				"action": "opened",
				"issue":  map[string]any{"number": 4, "title": "bug"},
			}),
		}
		json.NewEncoder(w).Encode(events)
	})

	account := githubAccount()
	account.ActivityTypes = []models.ActivityType{models.ActivityTypeIssue}

	activities, err := adapter.FetchActivities(context.Background(), account, "t", created.Add(-time.Hour), created.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityTypeIssue, activities[0].Type)
}

func TestGitHubHeatmapAggregatesByDay(t *testing.T) {
	day1 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 11, 9, 0, 0, 0, time.UTC)

	adapter := newGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		events := []map[string]any{
			eventJSON("2", "PushEvent", day2, map[string]any{
				"ref":     "refs/heads/main",
				"commits": []map[string]string{{"sha": "b", "message": "m2"}},
			}),
			eventJSON("1", "PushEvent", day1, map[string]any{
				"ref":     "refs/heads/main",
				"commits": []map[string]string{{"sha": "a", "message": "m1"}},
			}),
		}
		json.NewEncoder(w).Encode(events)
	})

	buckets, err := adapter.FetchHeatmap(context.Background(), githubAccount(), "t", day1.Add(-time.Hour), day2.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2026-08-10", buckets[0].Date)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, "2026-08-11", buckets[1].Date)
}
