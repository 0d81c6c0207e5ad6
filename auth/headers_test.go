package auth

import (
	"context"
	"testing"

	"github.com/c360studio/flowengine/credentials"
	"github.com/c360studio/flowengine/stepmodel"
)

type memStore struct {
	data map[string]credentials.ToolCredentials
}

func (s *memStore) Get(_ context.Context, org, tool string) (credentials.ToolCredentials, error) {
	c, ok := s.data[org+"."+tool]
	if !ok {
		return credentials.ToolCredentials{}, errNotFound{}
	}
	return c, nil
}
func (s *memStore) Set(_ context.Context, org, tool string, c credentials.ToolCredentials) error {
	s.data[org+"."+tool] = c
	return nil
}
func (s *memStore) Delete(_ context.Context, org, tool string) error {
	delete(s.data, org+"."+tool)
	return nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func newTestBuilder(lookup ConfigLookup) (*Builder, *memStore) {
	store := &memStore{data: map[string]credentials.ToolCredentials{}}
	resolver := credentials.NewResolver(store)
	return NewBuilder(resolver, lookup, nil), store
}

func TestBuildHeadersOnlyForHTTPAndOAuthSteps(t *testing.T) {
	b, _ := newTestBuilder(nil)
	step := stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepDelay}
	got := b.BuildHeaders(context.Background(), "org1", step, "")
	if len(got) != 0 {
		t.Errorf("expected empty headers for non-http step, got %v", got)
	}
}

func TestBuildHeadersResolvesToolFromURLHost(t *testing.T) {
	b, store := newTestBuilder(func(ctx context.Context, org, tool string) (OrgAuthConfig, bool) {
		if tool == "GitHub" {
			return OrgAuthConfig{Type: AuthAPIKey}, true
		}
		return OrgAuthConfig{}, false
	})
	_ = store.Set(context.Background(), "org1", "GitHub", credentials.ToolCredentials{APIKey: "K"})

	step := stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepHTTPRequest}
	got := b.BuildHeaders(context.Background(), "org1", step, "https://api.github.com/repos")

	if got["Authorization"] != "Bearer K" {
		t.Errorf("expected Authorization header from apiKey, got %v", got)
	}
}

func TestBuildHeadersPrefersExplicitHeaderNameValue(t *testing.T) {
	b, store := newTestBuilder(func(ctx context.Context, org, tool string) (OrgAuthConfig, bool) {
		return OrgAuthConfig{Type: AuthAPIKey}, true
	})
	_ = store.Set(context.Background(), "org1", "Slack", credentials.ToolCredentials{APIKey: "ignored"})

	step := stepmodel.FlowStep{
		ID:   "s1",
		Type: stepmodel.StepHTTPRequest,
		Config: map[string]any{
			"toolName":    "Slack",
			"headerName":  "X-Api-Key",
			"headerValue": "explicit-value",
		},
	}
	got := b.BuildHeaders(context.Background(), "org1", step, "")
	if got["X-Api-Key"] != "explicit-value" {
		t.Errorf("expected explicit header to win over apiKey, got %v", got)
	}
}

func TestBuildHeadersOAuth2UsesAccessToken(t *testing.T) {
	b, store := newTestBuilder(func(ctx context.Context, org, tool string) (OrgAuthConfig, bool) {
		return OrgAuthConfig{Type: AuthOAuth2}, true
	})
	_ = store.Set(context.Background(), "org1", "Notion", credentials.ToolCredentials{AccessToken: "tok", TokenType: "Bearer"})

	step := stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepOAuthAPICall, Config: map[string]any{"toolName": "Notion"}}
	got := b.BuildHeaders(context.Background(), "org1", step, "")
	if got["Authorization"] != "Bearer tok" {
		t.Errorf("expected bearer token header, got %v", got)
	}
}

func TestBuildHeadersReturnsEmptyWhenToolUnresolvable(t *testing.T) {
	b, _ := newTestBuilder(nil)
	step := stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepHTTPRequest}
	got := b.BuildHeaders(context.Background(), "org1", step, "https://example.com/unknown")
	if len(got) != 0 {
		t.Errorf("expected empty headers when tool cannot be resolved, got %v", got)
	}
}
