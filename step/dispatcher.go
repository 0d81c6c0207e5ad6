// Package step implements the Step Dispatcher (C7): a per-type executor
// table that dispatches one step to its handler and normalizes the
// result. The Dispatcher never touches the Execution Log or Event
// Publisher — that is the Orchestrator's responsibility.
package step

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/flowengine/sandbox"
	"github.com/c360studio/flowengine/stepmodel"
)

// HeaderBuilder resolves outbound auth headers for a step; satisfied by
// *auth.Builder. Kept as an interface here so the dispatcher does not
// import the auth package's credential-resolver dependency chain.
type HeaderBuilder interface {
	BuildHeaders(ctx context.Context, org string, step stepmodel.FlowStep, requestURL string) map[string]string
}

// SandboxRunner is the subset of sandbox.Executor the dispatcher drives.
type SandboxRunner interface {
	RunSync(ctx context.Context, code string, lang sandbox.Language, sctx sandbox.Context) (sandbox.RunResult, error)
	RunAsync(ctx context.Context, code string, lang sandbox.Language, sctx sandbox.Context) (string, error)
	GetAsyncResult(sessionID string, partialContext map[string]any) (sandbox.AsyncResult, error)
}

// Invocation is everything a handler needs to run one step. It is an
// immutable snapshot: handlers never see or mutate the orchestrator's
// live stepOutputs/variables maps.
type Invocation struct {
	OrgID       string
	UserID      string
	FlowID      string
	ExecutionID string
	Step        stepmodel.FlowStep
	Variables   map[string]any
	StepOutputs map[string]any
}

// Dispatcher routes a step to its handler by type.
type Dispatcher struct {
	sandboxRunner SandboxRunner
	headers       HeaderBuilder
	httpClient    *http.Client
	logger        *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default http.Client used by http_request.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher builds a Dispatcher. sandboxRunner and headers may be nil;
// steps that need them then fail with SANDBOX_UNAVAILABLE or simply carry
// no auth headers, per spec.
func NewDispatcher(sandboxRunner SandboxRunner, headers HeaderBuilder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sandboxRunner: sandboxRunner,
		headers:       headers,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch routes inv to its handler and returns a normalized StepResult.
// metadata.duration is left for the Orchestrator to fill in.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) stepmodel.StepResult {
	var result stepmodel.StepResult
	switch inv.Step.Type {
	case stepmodel.StepSandboxSync:
		result = d.handleSandboxSync(ctx, inv)
	case stepmodel.StepSandboxAsync:
		result = d.handleSandboxAsync(ctx, inv)
	case stepmodel.StepCodeExecution:
		result = d.handleCodeExecution(ctx, inv)
	case stepmodel.StepDataTransform:
		result = d.handleDataTransform(ctx, inv)
	case stepmodel.StepConditional:
		result = d.handleConditional(ctx, inv)
	case stepmodel.StepHTTPRequest, stepmodel.StepOAuthAPICall:
		result = d.handleHTTPRequest(ctx, inv)
	case stepmodel.StepDelay:
		result = d.handleDelay(ctx, inv)
	default:
		result = unknownStepType(inv.Step.Type)
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	return result
}
