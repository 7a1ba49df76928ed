package models

// Account is a configured provider identity. IDs are stable and immutable
// once created; disabled accounts never enter any fetch path.
type Account struct {
	ID         string     `json:"id" validate:"required"`
	Provider   Provider   `json:"provider" validate:"required,oneof=github azuredevops calendar"`
	AuthMethod AuthMethod `json:"auth_method" validate:"required,oneof=oauth token"`
	Enabled    bool       `json:"enabled"`

	// Login is the provider-side user identity (GitHub login, DevOps user email)
	Login string `json:"login,omitempty"`

	// Organization is required for Azure DevOps accounts
	Organization string `json:"organization,omitempty"`

	// Project optionally scopes DevOps queries to a single project
	Project string `json:"project,omitempty"`

	// CalendarIDs selects which calendar feeds to sync for calendar accounts
	CalendarIDs []string `json:"calendar_ids,omitempty"`

	// ActivityTypes filters which activity types are kept; empty means all
	ActivityTypes []ActivityType `json:"activity_types,omitempty"`
}

// WantsType reports whether the account's type filter admits t
func (a Account) WantsType(t ActivityType) bool {
	if len(a.ActivityTypes) == 0 {
		return true
	}
	for _, want := range a.ActivityTypes {
		if want == t {
			return true
		}
	}
	return false
}
