// Package credentials implements the Credential Resolver (C1): an opaque
// key/value store for per-(org,tool) credentials, with a TTL cache in
// front of it and OAuth2 refresh-token support.
package credentials

import "time"

// ToolCredentials is the per-(org,tool) credential envelope. Unknown keys
// set via Extra round-trip through Set/Get untouched, since the store is
// deliberately opaque to anything beyond the OAuth/API-key fields it needs
// to reason about.
type ToolCredentials struct {
	AccessToken  string         `json:"accessToken,omitempty"`
	RefreshToken string         `json:"refreshToken,omitempty"`
	ExpiresAt    int64          `json:"expiresAt"` // epoch ms; 0 = never
	APIKey       string         `json:"apiKey,omitempty"`
	ClientID     string         `json:"clientId,omitempty"`
	ClientSecret string         `json:"clientSecret,omitempty"`
	TokenEndpoint string        `json:"tokenEndpoint,omitempty"`
	HeaderName   string         `json:"headerName,omitempty"`
	HeaderValue  string         `json:"headerValue,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	TokenType    string         `json:"tokenType,omitempty"` // default "Bearer"
	LastUpdated  time.Time      `json:"lastUpdated,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// OAuthTokens is the narrower view returned by GetOAuthTokens.
type OAuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"tokenType"`
}

func (c ToolCredentials) effectiveTokenType() string {
	if c.TokenType == "" {
		return "Bearer"
	}
	return c.TokenType
}
