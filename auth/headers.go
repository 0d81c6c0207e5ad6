// Package auth implements the Auth Header Builder (C6): given a step and
// execution context, produces the header map to merge into an outbound
// HTTP request. Failures here never fail the step — missing headers just
// propagate to the downstream call.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/c360studio/flowengine/credentials"
	"github.com/c360studio/flowengine/metrics"
	"github.com/c360studio/flowengine/stepmodel"
)

// headeredStepTypes is the closed set of step types that receive headers.
var headeredStepTypes = map[stepmodel.StepType]bool{
	stepmodel.StepHTTPRequest:  true,
	stepmodel.StepOAuthAPICall: true,
}

// domainToolTable resolves a request URL's host to a known tool name when
// config.toolName is absent.
var domainToolTable = map[string]string{
	"api.slack.com":   "Slack",
	"hooks.slack.com": "Slack",
	"api.github.com":  "GitHub",
	"api.notion.com":  "Notion",
	"api.linear.app":  "Linear",
	"discord.com":     "Discord",
	"api.discord.com": "Discord",
}

// AuthType classifies how a credential was resolved into headers.
type AuthType string

const (
	AuthAPIKey AuthType = "apiKey"
	AuthOAuth2 AuthType = "oauth2"
	AuthNone   AuthType = "none"
)

// OrgAuthConfig is the org-level auth configuration for one tool: whether
// it's an API-key or OAuth2 integration.
type OrgAuthConfig struct {
	Type AuthType
}

// ConfigLookup resolves the org-level AuthConfig for a tool. Returning
// (zero, false) is treated the same as "not configured".
type ConfigLookup func(ctx context.Context, org, tool string) (OrgAuthConfig, bool)

// Builder implements BuildHeaders, backed by a credential resolver and an
// org auth-config lookup.
type Builder struct {
	creds    *credentials.Resolver
	lookup   ConfigLookup
	logger   *slog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(creds *credentials.Resolver, lookup ConfigLookup, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{creds: creds, lookup: lookup, logger: logger}
}

// BuildHeaders implements the C6 contract for one step invocation.
func (b *Builder) BuildHeaders(ctx context.Context, org string, step stepmodel.FlowStep, requestURL string) map[string]string {
	if !headeredStepTypes[step.Type] {
		return map[string]string{}
	}

	toolName := b.resolveToolName(step, requestURL)
	if toolName == "" {
		metrics.AuthInjectionTotal.WithLabelValues(org, step.ID, string(step.Type), "", string(AuthNone)).Inc()
		return map[string]string{}
	}

	cfg, ok := b.lookupConfig(ctx, org, toolName)
	if !ok {
		metrics.AuthInjectionTotal.WithLabelValues(org, step.ID, string(step.Type), toolName, string(AuthNone)).Inc()
		return map[string]string{}
	}

	headers, authType := b.headersForConfig(ctx, org, toolName, step, cfg)
	metrics.AuthInjectionTotal.WithLabelValues(org, step.ID, string(step.Type), toolName, string(authType)).Inc()
	return headers
}

func (b *Builder) lookupConfig(ctx context.Context, org, tool string) (OrgAuthConfig, bool) {
	if b.lookup == nil {
		return OrgAuthConfig{}, false
	}
	return b.lookup(ctx, org, tool)
}

func (b *Builder) resolveToolName(step stepmodel.FlowStep, requestURL string) string {
	if name, ok := step.Config["toolName"].(string); ok && name != "" {
		return name
	}
	if requestURL == "" {
		return ""
	}
	u, err := url.Parse(requestURL)
	if err != nil {
		return ""
	}
	return domainToolTable[strings.ToLower(u.Hostname())]
}

func (b *Builder) headersForConfig(ctx context.Context, org, tool string, step stepmodel.FlowStep, cfg OrgAuthConfig) (map[string]string, AuthType) {
	switch cfg.Type {
	case AuthAPIKey:
		return b.apiKeyHeaders(ctx, org, tool, step), AuthAPIKey
	case AuthOAuth2:
		return b.oauthHeaders(ctx, org, tool), AuthOAuth2
	default:
		return map[string]string{}, AuthNone
	}
}

func (b *Builder) apiKeyHeaders(ctx context.Context, org, tool string, step stepmodel.FlowStep) map[string]string {
	if name, okName := step.Config["headerName"].(string); okName && name != "" {
		if value, okVal := step.Config["headerValue"].(string); okVal && value != "" {
			return map[string]string{name: value}
		}
	}

	creds, err := b.creds.GetToolCredentials(ctx, org, tool)
	if err != nil {
		b.logger.Warn("auth: failed to resolve api key credentials", "org", org, "tool", tool, "error", err)
		return map[string]string{}
	}
	if creds.HeaderName != "" && creds.HeaderValue != "" {
		return map[string]string{creds.HeaderName: creds.HeaderValue}
	}
	if creds.APIKey == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s", creds.APIKey)}
}

func (b *Builder) oauthHeaders(ctx context.Context, org, tool string) map[string]string {
	tokens, err := b.creds.GetOAuthTokens(ctx, org, tool)
	if err != nil {
		b.logger.Warn("auth: failed to resolve oauth tokens", "org", org, "tool", tool, "error", err)
		return map[string]string{}
	}
	if tokens.AccessToken == "" {
		return map[string]string{}
	}
	tokenType := tokens.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return map[string]string{"Authorization": fmt.Sprintf("%s %s", tokenType, tokens.AccessToken)}
}
