package tokens

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/models"
)

// TokenPair is the outcome of a refresh exchange. RefreshToken is empty when
// the provider did not rotate the refresh credential.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Exchanger swaps a refresh credential for a new access credential
type Exchanger interface {
	Exchange(ctx context.Context, account models.Account, refreshToken string) (TokenPair, error)
}

// ErrExchangeRejected is returned when the provider rejects the refresh credential
var ErrExchangeRejected = fmt.Errorf("provider rejected the refresh credential")

// OAuthEndpoints maps providers to their token endpoints and client identity
type OAuthEndpoints struct {
	GitHubTokenURL          string
	GitHubClientID          string
	GitHubClientSecret      string
	AzureDevOpsTokenURL     string
	AzureDevOpsClientID     string
	AzureDevOpsClientSecret string
}

// DefaultOAuthEndpoints returns the public provider token endpoints
func DefaultOAuthEndpoints() OAuthEndpoints {
	return OAuthEndpoints{
		GitHubTokenURL:      "https://github.com/login/oauth/access_token",
		AzureDevOpsTokenURL: "https://app.vssps.visualstudio.com/oauth2/token",
	}
}

// HTTPExchanger performs refresh-token exchanges against provider token
// endpoints
type HTTPExchanger struct {
	client    *httpclient.Client
	endpoints OAuthEndpoints
	logger    ectologger.Logger
}

// NewHTTPExchanger creates an HTTPExchanger
func NewHTTPExchanger(client *httpclient.Client, endpoints OAuthEndpoints, logger ectologger.Logger) *HTTPExchanger {
	return &HTTPExchanger{
		client:    client,
		endpoints: endpoints,
		logger:    logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
}

// Exchange posts the refresh grant to the provider's token endpoint
func (e *HTTPExchanger) Exchange(ctx context.Context, account models.Account, refreshToken string) (TokenPair, error) {
	endpoint, form, err := e.request(account, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	resp, err := e.client.PostForm(ctx, endpoint, form, map[string]string{"Accept": "application/json"})
	if err != nil {
		return TokenPair{}, fmt.Errorf("token exchange request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return TokenPair{}, ErrExchangeRejected
	}
	if resp.StatusCode != http.StatusOK {
		return TokenPair{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return TokenPair{}, fmt.Errorf("token endpoint response is not valid JSON: %w", err)
	}
	// GitHub reports grant errors inside a 200 body
	if body.Error != "" || body.AccessToken == "" {
		return TokenPair{}, ErrExchangeRejected
	}

	e.logger.WithContext(ctx).Infof("exchanged refresh credential for account %s", account.ID)

	return TokenPair{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}, nil
}

func (e *HTTPExchanger) request(account models.Account, refreshToken string) (string, url.Values, error) {
	switch account.Provider {
	case models.ProviderGitHub:
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", e.endpoints.GitHubClientID)
		form.Set("client_secret", e.endpoints.GitHubClientSecret)
		return e.endpoints.GitHubTokenURL, form, nil
	case models.ProviderAzureDevOps:
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("assertion", refreshToken)
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", e.endpoints.AzureDevOpsClientSecret)
		return e.endpoints.AzureDevOpsTokenURL, form, nil
	}
	return "", nil, fmt.Errorf("provider %s has no token endpoint", account.Provider)
}
