package credentials

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/c360studio/flowengine/flowerr"
)

// expiryGrace is subtracted from expiresAt so tokens are refreshed slightly
// before they actually expire.
const expiryGrace = 5 * time.Minute

// Resolver implements the Credential Resolver (C1) contract: cached reads
// over a backing Store, plus the OAuth refresh flow.
type Resolver struct {
	store  Store
	cache  *ttlCache
	logger *slog.Logger
	http   httpDoer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL overrides the default 10-minute cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cache = newTTLCache(ttl) }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithHTTPClient overrides the HTTP client used for OAuth token refresh.
func WithHTTPClient(c httpDoer) Option {
	return func(r *Resolver) { r.http = c }
}

// NewResolver builds a Resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  newTTLCache(DefaultCacheTTL),
		logger: slog.Default(),
		http:   defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetToolCredentials returns the stored credentials for (org, tool),
// reading through the cache first. A cache miss or cache error falls
// through to the backing store; a store miss fails with NOT_FOUND.
func (r *Resolver) GetToolCredentials(ctx context.Context, org, tool string) (ToolCredentials, error) {
	key := credKey(org, tool)
	if creds, ok := r.cache.get(key); ok {
		return creds, nil
	}
	creds, err := r.store.Get(ctx, org, tool)
	if err != nil {
		return ToolCredentials{}, err
	}
	r.cache.set(key, creds)
	return creds, nil
}

// SetToolCredentials upserts creds and invalidates the cached entry.
func (r *Resolver) SetToolCredentials(ctx context.Context, org, tool string, creds ToolCredentials) error {
	if err := r.store.Set(ctx, org, tool, creds); err != nil {
		return err
	}
	r.cache.invalidate(credKey(org, tool))
	return nil
}

// DeleteToolCredentials removes the stored credentials and invalidates the cache.
func (r *Resolver) DeleteToolCredentials(ctx context.Context, org, tool string) error {
	if err := r.store.Delete(ctx, org, tool); err != nil {
		return err
	}
	r.cache.invalidate(credKey(org, tool))
	return nil
}

// InvalidateOrg drops every cached entry for org without touching the store.
func (r *Resolver) InvalidateOrg(org string) {
	r.cache.invalidateOrg(org)
}

// GetOAuthTokens returns the narrower OAuth view, failing with
// NO_ACCESS_TOKEN when the stored credentials carry none.
func (r *Resolver) GetOAuthTokens(ctx context.Context, org, tool string) (OAuthTokens, error) {
	creds, err := r.GetToolCredentials(ctx, org, tool)
	if err != nil {
		return OAuthTokens{}, err
	}
	if creds.AccessToken == "" {
		return OAuthTokens{}, flowerr.New(flowerr.NoAccessToken, "no access token stored for tool")
	}
	return OAuthTokens{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
		Scope:        creds.Scope,
		TokenType:    creds.effectiveTokenType(),
	}, nil
}

// IsTokenExpired reports whether the token needs a refresh: it is
// considered expired when expiresAt is set and within expiryGrace of now,
// or when the tokens could not be retrieved at all.
func (r *Resolver) IsTokenExpired(ctx context.Context, org, tool string) bool {
	tokens, err := r.GetOAuthTokens(ctx, org, tool)
	if err != nil {
		return true
	}
	if tokens.ExpiresAt <= 0 {
		return false
	}
	return tokens.ExpiresAt-expiryGrace.Milliseconds() <= time.Now().UnixMilli()
}

// UpdateOAuthTokens merges tokens into the existing credential record,
// preserving non-OAuth keys, and stamps LastUpdated.
func (r *Resolver) UpdateOAuthTokens(ctx context.Context, org, tool string, tokens OAuthTokens) error {
	existing, err := r.store.Get(ctx, org, tool)
	if err != nil && !isNotFound(err) {
		return err
	}
	existing.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		existing.RefreshToken = tokens.RefreshToken
	}
	existing.ExpiresAt = tokens.ExpiresAt
	if tokens.Scope != "" {
		existing.Scope = tokens.Scope
	}
	if tokens.TokenType != "" {
		existing.TokenType = tokens.TokenType
	}
	existing.LastUpdated = time.Now().UTC()

	if err := r.store.Set(ctx, org, tool, existing); err != nil {
		return err
	}
	r.cache.invalidate(credKey(org, tool))
	return nil
}

func isNotFound(err error) bool {
	var fe *flowerr.Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code == flowerr.NotFound
}
