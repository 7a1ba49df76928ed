package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
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
	// DefaultAzureDevOpsBaseURL is the Azure DevOps organization API base
	DefaultAzureDevOpsBaseURL = "https://dev.azure.com"

	azureDevOpsAPIVersion = "7.0"

	// azureDevOpsPageSize is the $top used for paginated list endpoints
	azureDevOpsPageSize = 100

	// azureDevOpsMaxPages bounds pagination draining per endpoint
	azureDevOpsMaxPages = 50
)

// AzureDevOps converts work item revisions and pull requests into unified
// activities. Accounts must carry an Organization; Project optionally narrows
// the query.
type AzureDevOps struct {
	client  *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

// NewAzureDevOps creates an Azure DevOps adapter. An empty baseURL selects
// the public dev.azure.com API.
func NewAzureDevOps(client *httpclient.Client, baseURL string, logger ectologger.Logger) *AzureDevOps {
	if baseURL == "" {
		baseURL = DefaultAzureDevOpsBaseURL
	}
	return &AzureDevOps{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type azureWorkItemBatch struct {
	Values []struct {
		ID     int `json:"id"`
		Rev    int `json:"rev"`
		Fields struct {
			Title        string `json:"System.Title"`
			WorkItemType string `json:"System.WorkItemType"`
			ChangedDate  string `json:"System.ChangedDate"`
			ChangedBy    string `json:"System.ChangedBy"`
			State        string `json:"System.State"`
			TeamProject  string `json:"System.TeamProject"`
		} `json:"fields"`
	} `json:"values"`
	ContinuationToken string `json:"continuationToken"`
	IsLastBatch       bool   `json:"isLastBatch"`
}

type azurePullRequestPage struct {
	Value []struct {
		PullRequestID int    `json:"pullRequestId"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		Status        string `json:"status"`
		CreationDate  string `json:"creationDate"`
		SourceRefName string `json:"sourceRefName"`
		CreatedBy     struct {
			UniqueName string `json:"uniqueName"`
		} `json:"createdBy"`
		Repository struct {
			Name    string `json:"name"`
			Project struct {
				Name string `json:"name"`
			} `json:"project"`
		} `json:"repository"`
	} `json:"value"`
	Count int `json:"count"`
}

// FetchActivities drains work item revisions and pull requests for the window
func (a *AzureDevOps) FetchActivities(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.UnifiedActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "AzureDevOps.FetchActivities")
	defer span.End()

	if err := validateWindow(account, from, to); err != nil {
		return nil, err
	}
	if account.Organization == "" {
		return nil, NewFetchError(KindConfiguration, account, "azuredevops account requires an organization")
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + token,
	}

	workItems, err := a.fetchWorkItems(ctx, account, headers, from, to)
	if err != nil {
		return nil, err
	}

	pullRequests, err := a.fetchPullRequests(ctx, account, headers, from, to)
	if err != nil {
		return nil, err
	}

	activities := append(workItems, pullRequests...)
	a.logger.WithContext(ctx).Debugf("azuredevops fetch for %s returned %d activities", account.ID, len(activities))
	return activities, nil
}

// FetchHeatmap derives buckets by aggregating fetched activities
func (a *AzureDevOps) FetchHeatmap(ctx context.Context, account models.Account, token string, from, to time.Time) ([]models.HeatMapBucket, error) {
	activities, err := a.FetchActivities(ctx, account, token, from, to)
	if err != nil {
		return nil, err
	}
	return heatmap.Aggregate(activities), nil
}

func (a *AzureDevOps) fetchWorkItems(ctx context.Context, account models.Account, headers map[string]string, from, to time.Time) ([]models.UnifiedActivity, error) {
	if !account.WantsType(models.ActivityTypeWorkItem) {
		return nil, nil
	}

	var activities []models.UnifiedActivity
	continuation := ""

	for page := 0; page < azureDevOpsMaxPages; page++ {
		endpoint := fmt.Sprintf("%s/%s/%s_apis/wit/reporting/workitemrevisions?api-version=%s&startDateTime=%s&$maxPageSize=%d",
			a.baseURL,
			url.PathEscape(account.Organization),
			projectSegment(account.Project),
			azureDevOpsAPIVersion,
			url.QueryEscape(from.UTC().Format(time.RFC3339)),
			azureDevOpsPageSize,
		)
		if continuation != "" {
			endpoint += "&continuationToken=" + url.QueryEscape(continuation)
		}

		resp, err := a.client.Get(ctx, endpoint, headers)
		if err != nil {
			return nil, WrapFetchError(KindNetwork, account, "azuredevops work item request failed", err)
		}
		if err := a.checkStatus(resp, account); err != nil {
			return nil, err
		}

		var batch azureWorkItemBatch
		if err := resp.DecodeJSON(&batch); err != nil {
			return nil, WrapFetchError(KindDecoding, account, "azuredevops work item response is not valid JSON", err)
		}

		for _, item := range batch.Values {
			changedAt, err := time.Parse(time.RFC3339, item.Fields.ChangedDate)
			if err != nil || !inWindow(changedAt, from, to) {
				continue
			}
			if account.Login != "" && !strings.EqualFold(item.Fields.ChangedBy, account.Login) {
				continue
			}

			sourceID := fmt.Sprintf("wi-%d-%d", item.ID, item.Rev)
			itemRef := models.TicketRef{
				Key:    fmt.Sprintf("AB#%d", item.ID),
				System: tickets.SystemAzureBoards,
				URL:    fmt.Sprintf("%s/%s/_workitems/edit/%d", a.baseURL, account.Organization, item.ID),
			}

			activities = append(activities, models.UnifiedActivity{
				ID:        models.ActivityID(models.ProviderAzureDevOps, account.ID, sourceID),
				Provider:  models.ProviderAzureDevOps,
				AccountID: account.ID,
				SourceID:  sourceID,
				Type:      models.ActivityTypeWorkItem,
				Timestamp: changedAt,
				Title:     item.Fields.Title,
				Summary:   fmt.Sprintf("%s -> %s", item.Fields.WorkItemType, item.Fields.State),
				URL:       itemRef.URL,
				Project:   item.Fields.TeamProject,
				Tickets:   tickets.Merge(tickets.Extract(item.Fields.Title), []models.TicketRef{itemRef}),
			})
		}

		if batch.IsLastBatch || batch.ContinuationToken == "" {
			break
		}
		continuation = batch.ContinuationToken
	}

	return activities, nil
}

func (a *AzureDevOps) fetchPullRequests(ctx context.Context, account models.Account, headers map[string]string, from, to time.Time) ([]models.UnifiedActivity, error) {
	if !account.WantsType(models.ActivityTypePullRequest) {
		return nil, nil
	}

	var activities []models.UnifiedActivity

	for page := 0; page < azureDevOpsMaxPages; page++ {
		endpoint := fmt.Sprintf("%s/%s/%s_apis/git/pullrequests?api-version=%s&searchCriteria.status=all&$top=%d&$skip=%d",
			a.baseURL,
			url.PathEscape(account.Organization),
			projectSegment(account.Project),
			azureDevOpsAPIVersion,
			azureDevOpsPageSize,
			page*azureDevOpsPageSize,
		)

		resp, err := a.client.Get(ctx, endpoint, headers)
		if err != nil {
			return nil, WrapFetchError(KindNetwork, account, "azuredevops pull request request failed", err)
		}
		if err := a.checkStatus(resp, account); err != nil {
			return nil, err
		}

		var prPage azurePullRequestPage
		if err := resp.DecodeJSON(&prPage); err != nil {
			return nil, WrapFetchError(KindDecoding, account, "azuredevops pull request response is not valid JSON", err)
		}
		if len(prPage.Value) == 0 {
			break
		}

		for _, pr := range prPage.Value {
			createdAt, err := time.Parse(time.RFC3339, pr.CreationDate)
			if err != nil || !inWindow(createdAt, from, to) {
				continue
			}
			if account.Login != "" && !strings.EqualFold(pr.CreatedBy.UniqueName, account.Login) {
				continue
			}

			branch := strings.TrimPrefix(pr.SourceRefName, "refs/heads/")
			sourceID := fmt.Sprintf("pr-%d", pr.PullRequestID)

			activities = append(activities, models.UnifiedActivity{
				ID:        models.ActivityID(models.ProviderAzureDevOps, account.ID, sourceID),
				Provider:  models.ProviderAzureDevOps,
				AccountID: account.ID,
				SourceID:  sourceID,
				Type:      models.ActivityTypePullRequest,
				Timestamp: createdAt,
				Title:     pr.Title,
				Summary:   pr.Status,
				Project:   pr.Repository.Project.Name,
				Branch:    branch,
				Tickets:   tickets.Extract(branch, pr.Title, pr.Description),
			})
		}

		if len(prPage.Value) < azureDevOpsPageSize {
			break
		}
	}

	return activities, nil
}

func (a *AzureDevOps) checkStatus(resp *httpclient.Response, account models.Account) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	// Azure DevOps answers bad or expired tokens with a 203 sign-in page
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNonAuthoritativeInfo:
		return NewFetchError(KindAuthenticationFailed, account, "azuredevops rejected the access token")
	case resp.StatusCode == http.StatusTooManyRequests:
		fe := NewFetchError(KindRateLimited, account, "azuredevops rate limit exceeded")
		if retryAfter := resp.Header("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				fe = fe.WithRetryAfter(time.Duration(seconds) * time.Second)
			}
		}
		return fe
	}
	return NewFetchError(KindNetwork, account, fmt.Sprintf("azuredevops returned status %d", resp.StatusCode))
}

// projectSegment returns "<project>/" when a project scope is configured
func projectSegment(project string) string {
	if project == "" {
		return ""
	}
	return url.PathEscape(project) + "/"
}
