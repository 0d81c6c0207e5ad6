package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/c360studio/flowengine/flowerr"
)

// httpDoer is the minimal surface RefreshOAuthTokens needs; satisfied by
// *http.Client and test doubles alike.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() httpDoer {
	return &http.Client{Timeout: 15 * time.Second}
}

// providerEndpoints maps well-known provider names to their OAuth2 token
// endpoints, reusing oauth2.Endpoint so the table composes with anything
// else in the module that speaks golang.org/x/oauth2 (e.g. an operator
// script that wants the authorization URL too, not just the token URL).
var providerEndpoints = map[string]oauth2.Endpoint{
	"github":    {AuthURL: "https://github.com/login/oauth/authorize", TokenURL: "https://github.com/login/oauth/access_token"},
	"google":    {AuthURL: "https://accounts.google.com/o/oauth2/auth", TokenURL: "https://oauth2.googleapis.com/token"},
	"microsoft": {AuthURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize", TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token"},
	"slack":     {AuthURL: "https://slack.com/oauth/v2/authorize", TokenURL: "https://slack.com/api/oauth.v2.access"},
	"discord":   {AuthURL: "https://discord.com/api/oauth2/authorize", TokenURL: "https://discord.com/api/oauth2/token"},
}

// RefreshOAuthTokens runs the OAuth2 refresh-token flow for (org, tool): it
// loads the current credentials, fails with NO_REFRESH_TOKEN when none is
// stored, POSTs a form-encoded refresh request to the tool's configured
// tokenEndpoint (or the per-provider default table), and persists the
// merged result via UpdateOAuthTokens. Invoked externally by the Step
// Dispatcher, never by the Resolver itself.
func (r *Resolver) RefreshOAuthTokens(ctx context.Context, org, tool, provider string) (OAuthTokens, error) {
	creds, err := r.GetToolCredentials(ctx, org, tool)
	if err != nil {
		return OAuthTokens{}, err
	}
	if creds.RefreshToken == "" {
		return OAuthTokens{}, flowerr.New(flowerr.NoRefreshToken, "no refresh token stored for tool")
	}

	endpoint := creds.TokenEndpoint
	if endpoint == "" {
		ep, ok := providerEndpoints[provider]
		if !ok {
			return OAuthTokens{}, flowerr.New(flowerr.NoRefreshToken, fmt.Sprintf("no token endpoint configured or known for provider %q", provider))
		}
		endpoint = ep.TokenURL
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	if creds.Scope != "" {
		form.Set("scope", creds.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return OAuthTokens{}, flowerr.Wrap(flowerr.NetworkError, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return OAuthTokens{}, flowerr.Wrap(flowerr.NetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OAuthTokens{}, flowerr.Wrap(flowerr.NetworkError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return OAuthTokens{}, flowerr.New(flowerr.HTTPError, fmt.Sprintf("token refresh failed with status %d: %s", resp.StatusCode, string(body)))
	}

	refreshed, err := parseTokenResponse(body)
	if err != nil {
		return OAuthTokens{}, flowerr.Wrap(flowerr.UnknownError, err)
	}

	merged := OAuthTokens{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
		Scope:        creds.Scope,
		TokenType:    creds.effectiveTokenType(),
	}
	if refreshed.RefreshToken != "" {
		merged.RefreshToken = refreshed.RefreshToken
	}
	if refreshed.ExpiresIn > 0 {
		merged.ExpiresAt = time.Now().UnixMilli() + refreshed.ExpiresIn*1000
	}
	if refreshed.Scope != "" {
		merged.Scope = refreshed.Scope
	}
	if refreshed.TokenType != "" {
		merged.TokenType = refreshed.TokenType
	}

	if err := r.UpdateOAuthTokens(ctx, org, tool, merged); err != nil {
		return OAuthTokens{}, err
	}
	return merged, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func parseTokenResponse(body []byte) (tokenResponse, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err == nil && tr.AccessToken != "" {
		return tr, nil
	}
	// Some providers (notably older Slack/GitHub defaults) reply with a
	// form-encoded body instead of JSON.
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenResponse{}, err
	}
	expIn, _ := strconv.ParseInt(values.Get("expires_in"), 10, 64)
	return tokenResponse{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		ExpiresIn:    expIn,
		Scope:        values.Get("scope"),
		TokenType:    values.Get("token_type"),
	}, nil
}
