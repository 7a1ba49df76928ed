package models

import "fmt"

// Provider identifies an external activity source. The set is closed;
// dispatch over it is an exhaustive switch, not a registry lookup.
type Provider string

const (
	// ProviderGitHub is the Git-hosting provider
	ProviderGitHub Provider = "github"

	// ProviderAzureDevOps is the enterprise DevOps provider
	ProviderAzureDevOps Provider = "azuredevops"

	// ProviderCalendar is the ICS calendar subscription provider
	ProviderCalendar Provider = "calendar"
)

// Providers lists every known provider
var Providers = []Provider{ProviderGitHub, ProviderAzureDevOps, ProviderCalendar}

// ParseProvider parses a provider string
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGitHub, ProviderAzureDevOps, ProviderCalendar:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// SupportsRefresh reports whether the provider's token endpoint supports
// refresh-token exchange. Calendar subscriptions use static credentials and
// cannot be refreshed.
func (p Provider) SupportsRefresh() bool {
	switch p {
	case ProviderGitHub, ProviderAzureDevOps:
		return true
	case ProviderCalendar:
		return false
	}
	return false
}

// AuthMethod describes how an account authenticates
type AuthMethod string

const (
	// AuthMethodOAuth uses an OAuth access token plus optional refresh token
	AuthMethodOAuth AuthMethod = "oauth"

	// AuthMethodToken uses a static personal access token
	AuthMethodToken AuthMethod = "token"
)

// ActivityType classifies a unified activity
type ActivityType string

const (
	ActivityTypeCommit      ActivityType = "commit"
	ActivityTypePullRequest ActivityType = "pull_request"
	ActivityTypeIssue       ActivityType = "issue"
	ActivityTypeWorkItem    ActivityType = "work_item"
	ActivityTypeMeeting     ActivityType = "meeting"
	ActivityTypeComment     ActivityType = "comment"
	ActivityTypeReview      ActivityType = "review"
)
