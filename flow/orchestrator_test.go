package flow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/c360studio/flowengine/durable"
	"github.com/c360studio/flowengine/events"
	"github.com/c360studio/flowengine/execlog"
	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/step"
	"github.com/c360studio/flowengine/stepmodel"
)

type recordingPublisher struct {
	stepEvents []events.StepEvent
	execEvents []events.ExecutionEvent
}

func (p *recordingPublisher) PublishStepEvent(orgID, executionID string, event events.StepEvent) {
	p.stepEvents = append(p.stepEvents, event)
}

func (p *recordingPublisher) PublishExecutionEvent(orgID, executionID string, event events.ExecutionEvent) {
	p.execEvents = append(p.execEvents, event)
}

func boolPtr(b bool) *bool { return &b }

func TestRunHappyPathDelay(t *testing.T) {
	logs := execlog.NewMemStore()
	pub := &recordingPublisher{}
	dispatcher := step.NewDispatcher(nil, nil)
	o := NewOrchestrator(dispatcher, logs, pub)

	in := Input{
		OrgID: "org1", FlowID: "flow1", ExecutionID: "exec1",
		Steps: []stepmodel.FlowStep{
			{ID: "s1", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 10}},
		},
	}

	result := o.Run(context.Background(), in)

	if result.Status != stepmodel.ExecutionCompleted {
		t.Fatalf("expected completed, got %v", result.Status)
	}
	if result.CompletedSteps != 1 {
		t.Errorf("expected 1 completed step, got %d", result.CompletedSteps)
	}
	out, ok := result.StepOutputs["s1"].(map[string]any)
	if !ok || out["delayedFor"] != 10 {
		t.Errorf("expected stepOutputs[s1].delayedFor=10, got %+v", result.StepOutputs["s1"])
	}

	rows, err := logs.GetExecutionLogs(context.Background(), "exec1", "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != stepmodel.InvocationCompleted {
		t.Fatalf("expected one completed log row, got %+v", rows)
	}

	var gotStarted, gotCompleted bool
	for _, e := range pub.execEvents {
		if e.Status == events.ExecStarted && e.TotalSteps == 1 {
			gotStarted = true
		}
		if e.Status == events.ExecCompleted && e.CompletedSteps == 1 {
			gotCompleted = true
		}
	}
	if !gotStarted || !gotCompleted {
		t.Errorf("expected execution.started and execution.completed events, got %+v", pub.execEvents)
	}
	if len(pub.stepEvents) != 1 || pub.stepEvents[0].Status != events.StepCompleted {
		t.Errorf("expected one step.completed event, got %+v", pub.stepEvents)
	}
}

func TestRunGuardFalseSkipsStep(t *testing.T) {
	logs := execlog.NewMemStore()
	pub := &recordingPublisher{}
	dispatcher := step.NewDispatcher(nil, nil)
	o := NewOrchestrator(dispatcher, logs, pub)

	rule := json.RawMessage(`{"==":[{"var":"variables.skip"},true]}`)
	in := Input{
		OrgID: "org1", FlowID: "flow1", ExecutionID: "exec1",
		Variables: map[string]any{"skip": true},
		Steps: []stepmodel.FlowStep{
			{ID: "s1", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 1}, ExecuteIf: rule},
		},
	}

	result := o.Run(context.Background(), in)

	if result.Status != stepmodel.ExecutionCompleted {
		t.Fatalf("expected completed, got %v", result.Status)
	}
	if result.SkippedSteps != 1 {
		t.Errorf("expected 1 skipped step, got %d", result.SkippedSteps)
	}

	rows, _ := logs.GetExecutionLogs(context.Background(), "exec1", "org1")
	if len(rows) != 1 || rows[0].Status != stepmodel.InvocationSkipped {
		t.Fatalf("expected skipped log row, got %+v", rows)
	}
}

func TestRunCriticalFailureHaltsRemainingSteps(t *testing.T) {
	logs := execlog.NewMemStore()
	pub := &recordingPublisher{}
	dispatcher := step.NewDispatcher(nil, nil)
	o := NewOrchestrator(dispatcher, logs, pub)

	in := Input{
		OrgID: "org1", FlowID: "flow1", ExecutionID: "exec1",
		Steps: []stepmodel.FlowStep{
			{ID: "a", Type: stepmodel.StepType("unknown_x")},
			{ID: "b", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 1}},
		},
	}

	result := o.Run(context.Background(), in)

	if result.Status != stepmodel.ExecutionFailed {
		t.Fatalf("expected failed, got %v", result.Status)
	}
	if result.Error == nil || result.Error.Code != flowerr.UnknownStepType {
		t.Fatalf("expected UNKNOWN_STEP_TYPE error, got %+v", result.Error)
	}

	rows, _ := logs.GetExecutionLogs(context.Background(), "exec1", "org1")
	if len(rows) != 1 {
		t.Fatalf("expected exactly one log row (only for step a), got %d: %+v", len(rows), rows)
	}
	if rows[0].StepID != "a" || rows[0].Status != stepmodel.InvocationFailed {
		t.Fatalf("expected step a failed row, got %+v", rows[0])
	}
}

func TestRunNonCriticalFailureContinues(t *testing.T) {
	logs := execlog.NewMemStore()
	pub := &recordingPublisher{}
	dispatcher := step.NewDispatcher(nil, nil)
	o := NewOrchestrator(dispatcher, logs, pub)

	in := Input{
		OrgID: "org1", FlowID: "flow1", ExecutionID: "exec1",
		Steps: []stepmodel.FlowStep{
			{ID: "a", Type: stepmodel.StepType("unknown_x"), Critical: boolPtr(false)},
			{ID: "b", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 1}},
		},
	}

	result := o.Run(context.Background(), in)

	if result.Status != stepmodel.ExecutionFailed {
		t.Fatalf("expected failed overall status, got %v", result.Status)
	}
	if result.FailedSteps != 1 || result.CompletedSteps != 1 {
		t.Fatalf("expected 1 failed + 1 completed, got failed=%d completed=%d", result.FailedSteps, result.CompletedSteps)
	}

	rows, _ := logs.GetExecutionLogs(context.Background(), "exec1", "org1")
	if len(rows) != 2 {
		t.Fatalf("expected two log rows, got %d", len(rows))
	}
}

// fastRuntime is a durable.Runtime test double that retries without
// sleeping between attempts, so policy-driven retry counts can be
// exercised without paying the real backoff wall-clock cost.
type fastRuntime struct{}

func (fastRuntime) Step(ctx context.Context, name string, maxAttempts int, backoff durable.BackoffFunc, fn durable.Func) (any, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastResult any
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastResult, lastErr = fn(ctx, attempt)
		if lastErr == nil {
			break
		}
	}
	return lastResult, lastErr
}

func TestRunRetriesFailingHTTPStepUpToPolicyLimit(t *testing.T) {
	logs := execlog.NewMemStore()
	pub := &recordingPublisher{}
	dispatcher := step.NewDispatcher(nil, nil)
	o := NewOrchestrator(dispatcher, logs, pub, WithRuntimeFactory(func() durable.Runtime { return fastRuntime{} }))

	in := Input{
		OrgID: "org1", FlowID: "flow1", ExecutionID: "exec1",
		Steps: []stepmodel.FlowStep{
			{ID: "a", Type: stepmodel.StepHTTPRequest, Config: map[string]any{"url": "http://127.0.0.1:1"}, Critical: boolPtr(false)},
		},
	}

	result := o.Run(context.Background(), in)

	if result.FailedSteps != 1 {
		t.Fatalf("expected the step to ultimately fail, got %+v", result)
	}
	rows, _ := logs.GetExecutionLogs(context.Background(), "exec1", "org1")
	if len(rows) != 3 {
		t.Fatalf("expected 3 started/failed rows (one per attempt, non-critical 3-attempt policy), got %d", len(rows))
	}
}
