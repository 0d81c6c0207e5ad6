// Package flow implements the Flow Orchestrator (C9): the top-level driver
// that walks a flow's steps in order, consulting the Throttling Policy, the
// Condition Evaluator, the Step Dispatcher, the Execution Log, and the
// Event Publisher at each step boundary. Its own step loop is expressed as
// a sequence of named durable sub-units so any job-queue runtime exposing
// the durable.Runtime contract can host it.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360studio/flowengine/condition"
	"github.com/c360studio/flowengine/durable"
	"github.com/c360studio/flowengine/events"
	"github.com/c360studio/flowengine/execlog"
	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/metrics"
	"github.com/c360studio/flowengine/step"
	"github.com/c360studio/flowengine/stepmodel"
	"github.com/c360studio/flowengine/throttle"
)

// Dispatcher is the subset of *step.Dispatcher the orchestrator drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv step.Invocation) stepmodel.StepResult
}

// RuntimeFactory builds a fresh durable.Runtime scoped to one execution.
// NewOrchestrator defaults to NewMemoryRuntimeFactory; WithRuntimeFactory
// substitutes another factory.
type RuntimeFactory func() durable.Runtime

// NewMemoryRuntimeFactory returns a RuntimeFactory producing a fresh
// in-process durable.MemoryRuntime per call, for use without an external
// durable-queue backend.
func NewMemoryRuntimeFactory(logger *slog.Logger) RuntimeFactory {
	return func() durable.Runtime { return durable.NewMemoryRuntime(logger) }
}

// Input is what the Orchestrator receives from the flow-execute event.
type Input struct {
	OrgID       string
	UserID      string
	FlowID      string
	ExecutionID string
	Steps       []stepmodel.FlowStep
	Variables   map[string]any
}

// Orchestrator runs one FlowExecution end to end.
type Orchestrator struct {
	dispatcher Dispatcher
	logs       execlog.Store
	publisher  events.Publisher
	runtimes   RuntimeFactory
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRuntimeFactory overrides the default in-process durable.Runtime
// factory with one backed by an external job-queue.
func WithRuntimeFactory(f RuntimeFactory) Option {
	return func(o *Orchestrator) { o.runtimes = f }
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(dispatcher Dispatcher, logs execlog.Store, publisher events.Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher: dispatcher,
		logs:       logs,
		publisher:  publisher,
		logger:     slog.Default(),
	}
	o.runtimes = NewMemoryRuntimeFactory(o.logger)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is what Run returns: the final execution status plus per-step
// outputs, for callers (tests, the flow-orchestrator component) that want it synchronously
// in addition to the events already published.
type Result struct {
	Status         stepmodel.ExecutionStatus
	StepOutputs    map[string]any
	CompletedSteps int
	FailedSteps    int
	SkippedSteps   int
	Error          *flowerr.Error
}

// Run executes in.Steps in declaration order, per §4.9's algorithm.
func (o *Orchestrator) Run(ctx context.Context, in Input) Result {
	rt := o.runtimes()
	stepOutputs := map[string]any{}
	if in.Variables == nil {
		in.Variables = map[string]any{}
	}

	_, _ = rt.Step(ctx, "update-execution-status", 1, nil, func(ctx context.Context, attempt int) (any, error) {
		o.publisher.PublishExecutionEvent(in.OrgID, in.ExecutionID, events.ExecutionEvent{
			ExecutionID: in.ExecutionID,
			Status:      events.ExecStarted,
			Timestamp:   now(),
			OrgID:       in.OrgID,
			FlowID:      in.FlowID,
			TotalSteps:  len(in.Steps),
		})
		return nil, nil
	})

	result := Result{Status: stepmodel.ExecutionCompleted, StepOutputs: stepOutputs}

	for _, flowStep := range in.Steps {
		stepResult := o.runStepSubUnit(ctx, rt, in, flowStep, stepOutputs)

		switch {
		case stepResult.Skipped:
			result.SkippedSteps++
			o.publishStepEvent(in, flowStep, events.StepSkipped, stepResult)
		case stepResult.Success:
			stepOutputs[flowStep.ID] = stepResult.Output
			result.CompletedSteps++
			o.publishStepEvent(in, flowStep, events.StepCompleted, stepResult)
		default:
			result.FailedSteps++
			result.Error = stepResult.Error
			o.publishStepEvent(in, flowStep, events.StepFailed, stepResult)
			if flowStep.IsCritical() {
				result.Status = stepmodel.ExecutionFailed
				goto finalize
			}
		}
	}

	if result.FailedSteps > 0 {
		result.Status = stepmodel.ExecutionFailed
	}

finalize:
	_, _ = rt.Step(ctx, "finalize-execution", 1, nil, func(ctx context.Context, attempt int) (any, error) {
		var errPayload *events.ErrorPayload
		if result.Error != nil {
			errPayload = &events.ErrorPayload{Message: result.Error.Message, Code: string(result.Error.Code), Stack: result.Error.Stack}
		}
		o.publisher.PublishExecutionEvent(in.OrgID, in.ExecutionID, events.ExecutionEvent{
			ExecutionID:    in.ExecutionID,
			Status:         executionEventStatus(result.Status),
			Timestamp:      now(),
			OrgID:          in.OrgID,
			FlowID:         in.FlowID,
			TotalSteps:     len(in.Steps),
			CompletedSteps: result.CompletedSteps,
			FailedSteps:    result.FailedSteps,
			SkippedSteps:   result.SkippedSteps,
			Output:         stepOutputs,
			Error:          errPayload,
		})
		return nil, nil
	})

	return result
}

func executionEventStatus(s stepmodel.ExecutionStatus) events.ExecutionEventStatus {
	if s == stepmodel.ExecutionFailed {
		return events.ExecFailed
	}
	return events.ExecCompleted
}

// runStepSubUnit wraps the step routine as the policy-retried,
// individually-memoized "execute-step-{stepId}" sub-unit.
func (o *Orchestrator) runStepSubUnit(ctx context.Context, rt durable.Runtime, in Input, flowStep stepmodel.FlowStep, stepOutputs map[string]any) stepmodel.StepResult {
	policy := throttle.PolicyFor(flowStep)
	maxAttempts := throttle.MaxAttempts(policy.Retry)
	backoffFn := throttle.DurableBackoff(policy.Retry)
	stepKey := string(flowStep.Type)

	fn := func(ctx context.Context, attempt int) (any, error) {
		if attempt > 1 {
			metrics.StepRetriesTotal.WithLabelValues(in.OrgID, in.FlowID, stepKey).Inc()
		}
		start := time.Now()
		result := o.runStepRoutine(ctx, in, flowStep, stepOutputs)
		result = result.WithDuration(time.Since(start))
		metrics.StepExecutionSeconds.WithLabelValues(in.OrgID, in.FlowID, stepKey).Observe(time.Since(start).Seconds())

		if !result.Success && !result.Skipped {
			metrics.StepErrorsTotal.WithLabelValues(in.OrgID, in.FlowID, stepKey).Inc()
			return result, result.Error
		}
		return result, nil
	}

	v, _ := rt.Step(ctx, "execute-step-"+flowStep.ID, maxAttempts, backoffFn, fn)
	if sr, ok := v.(stepmodel.StepResult); ok {
		return sr
	}
	return stepmodel.StepResult{Success: false, Error: flowerr.New(flowerr.StepExecutionError, "sub-unit returned no result")}
}

// runStepRoutine is one fresh invocation of the step routine described in
// §4.9: mark started, evaluate the guard, dispatch, mark terminal.
func (o *Orchestrator) runStepRoutine(ctx context.Context, in Input, flowStep stepmodel.FlowStep, stepOutputs map[string]any) stepmodel.StepResult {
	inputs := stepmodel.InputsSnapshot{
		StepName:    flowStep.Name,
		StepType:    flowStep.Type,
		Config:      flowStep.Config,
		ExecuteIf:   flowStep.ExecuteIf,
		Variables:   in.Variables,
		StepOutputs: stepOutputs,
	}

	invocationID, err := o.logs.MarkStepStarted(ctx, in.OrgID, in.UserID, in.FlowID, in.ExecutionID, flowStep.ID, inputs)
	if err != nil {
		return stepmodel.StepResult{Success: false, Error: flowerr.Wrap(flowerr.LogUpdateError, err)}
	}

	if !condition.Empty(flowStep.ExecuteIf) {
		ok, evalErr := condition.Evaluate(flowStep.ExecuteIf, condition.Context{
			Variables:   in.Variables,
			StepOutputs: stepOutputs,
			CurrentStep: flowStep.ID,
			OrgID:       in.OrgID,
			UserID:      in.UserID,
			Meta:        condition.Meta{FlowID: in.FlowID, ExecutionID: in.ExecutionID, StepID: flowStep.ID},
		})
		if evalErr != nil {
			o.logger.Warn("executeIf evaluation failed, proceeding with step (fail-open)", "stepId", flowStep.ID, "error", evalErr)
		} else if !ok {
			reason := "executeIf condition evaluated to false"
			if markErr := o.logs.MarkStepSkipped(ctx, invocationID, reason); markErr != nil {
				return stepmodel.StepResult{Success: false, Error: flowerr.Wrap(flowerr.LogUpdateError, markErr)}
			}
			return stepmodel.StepResult{Success: true, Skipped: true, SkipReason: reason}
		}
	}

	result := o.dispatcher.Dispatch(ctx, step.Invocation{
		OrgID:       in.OrgID,
		UserID:      in.UserID,
		FlowID:      in.FlowID,
		ExecutionID: in.ExecutionID,
		Step:        flowStep,
		Variables:   in.Variables,
		StepOutputs: stepOutputs,
	})

	if result.Success {
		if markErr := o.logs.MarkStepCompleted(ctx, invocationID, result.Output); markErr != nil {
			return stepmodel.StepResult{Success: false, Error: flowerr.Wrap(flowerr.LogUpdateError, markErr)}
		}
		return result
	}

	if markErr := o.logs.MarkStepFailed(ctx, invocationID, result.Error); markErr != nil {
		return stepmodel.StepResult{Success: false, Error: flowerr.Wrap(flowerr.LogUpdateError, markErr)}
	}
	return result
}

func (o *Orchestrator) publishStepEvent(in Input, flowStep stepmodel.FlowStep, status events.StepEventStatus, result stepmodel.StepResult) {
	var errPayload *events.ErrorPayload
	if result.Error != nil {
		errPayload = &events.ErrorPayload{Message: result.Error.Message, Code: string(result.Error.Code), Stack: result.Error.Stack}
	}
	var duration int64
	if d, ok := result.Metadata["duration"].(int64); ok {
		duration = d
	}
	o.publisher.PublishStepEvent(in.OrgID, in.ExecutionID, events.StepEvent{
		StepID:      flowStep.ID,
		Status:      status,
		Timestamp:   now(),
		ExecutionID: in.ExecutionID,
		OrgID:       in.OrgID,
		FlowID:      in.FlowID,
		StepName:    flowStep.Name,
		Output:      result.Output,
		Error:       errPayload,
		DurationMs:  duration,
		SkipReason:  result.SkipReason,
		Metadata:    result.Metadata,
	})
}

func now() time.Time { return time.Now().UTC() }
