package step

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/sandbox"
	"github.com/c360studio/flowengine/stepmodel"
)

func TestDispatchDelayZeroCompletesImmediately(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 0}}}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success || res.Output["delayedFor"] != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDispatchUnknownStepType(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "a", Type: stepmodel.StepType("unknown_x")}}
	res := d.Dispatch(context.Background(), inv)
	if res.Success {
		t.Fatal("expected failure for unknown step type")
	}
	if res.Error.Code != flowerr.UnknownStepType {
		t.Errorf("expected UNKNOWN_STEP_TYPE, got %v", res.Error.Code)
	}
}

func TestDispatchSandboxSyncMissingCode(t *testing.T) {
	d := NewDispatcher(&fakeSandboxRunner{}, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepSandboxSync, Config: map[string]any{}}}
	res := d.Dispatch(context.Background(), inv)
	if res.Success || res.Error.Code != flowerr.MissingCode {
		t.Fatalf("expected MISSING_CODE, got %+v", res)
	}
}

func TestDispatchSandboxSyncUnavailableWithoutRunner(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepSandboxSync, Config: map[string]any{"code": "print(1)"}}}
	res := d.Dispatch(context.Background(), inv)
	if res.Success || res.Error.Code != flowerr.SandboxUnavailable {
		t.Fatalf("expected SANDBOX_UNAVAILABLE, got %+v", res)
	}
}

func TestDispatchHTTPRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepHTTPRequest, Config: map[string]any{"url": srv.URL, "method": "GET"}}}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Output["status"] != 200 {
		t.Errorf("expected status 200, got %v", res.Output["status"])
	}
}

func TestDispatchHTTPRequestNon2xxReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepHTTPRequest, Config: map[string]any{"url": srv.URL}}}
	res := d.Dispatch(context.Background(), inv)
	if res.Success {
		t.Fatal("expected failure for non-2xx response")
	}
	if res.Error.Code != flowerr.HTTPError {
		t.Errorf("expected HTTP_ERROR, got %v", res.Error.Code)
	}
}

func TestDispatchDataTransformDirectExpression(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{
		Step:        stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepDataTransform, Config: map[string]any{"script": "input.a + input.b", "useSandbox": false}},
		StepOutputs: map[string]any{"a": 1.0, "b": 2.0},
	}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Output["data"] != 3.0 {
		t.Errorf("expected 3, got %v", res.Output["data"])
	}
}

func TestDispatchConditionalDirectExpression(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{
		Step:      stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepConditional, Config: map[string]any{"condition": "context.variables.skip == true", "useSandbox": false}},
		Variables: map[string]any{"skip": true},
	}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Output["conditionResult"] != true {
		t.Errorf("expected conditionResult=true, got %v", res.Output["conditionResult"])
	}
}

func TestDispatchSandboxAsyncTimeoutAfterMaxPollAttempts(t *testing.T) {
	d := NewDispatcher(&fakeSandboxRunner{statusSequence: []sandbox.AsyncStatus{
		sandbox.AsyncRunning, sandbox.AsyncRunning, sandbox.AsyncRunning,
	}}, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepSandboxAsync, Config: map[string]any{
		"code":              "sleep(100)",
		"waitForCompletion": true,
		"maxPollAttempts":   3,
		"pollInterval":      1,
	}}}
	res := d.Dispatch(context.Background(), inv)
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Error.Code != flowerr.SandboxAsyncTimeout {
		t.Errorf("expected SANDBOX_ASYNC_TIMEOUT, got %v", res.Error.Code)
	}
	if res.Metadata["pollAttempts"] != 3 {
		t.Errorf("expected pollAttempts=3, got %v", res.Metadata["pollAttempts"])
	}
}

func TestDispatchSandboxAsyncCompletesOnPoll(t *testing.T) {
	d := NewDispatcher(&fakeSandboxRunner{statusSequence: []sandbox.AsyncStatus{
		sandbox.AsyncRunning, sandbox.AsyncCompleted,
	}}, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepSandboxAsync, Config: map[string]any{
		"code":              "compute()",
		"waitForCompletion": true,
		"maxPollAttempts":   5,
		"pollInterval":      1,
	}}}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Metadata["pollAttempts"] != 2 {
		t.Errorf("expected pollAttempts=2, got %v", res.Metadata["pollAttempts"])
	}
}

func TestDispatchSandboxAsyncNoWaitReturnsSessionID(t *testing.T) {
	d := NewDispatcher(&fakeSandboxRunner{}, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepSandboxAsync, Config: map[string]any{"code": "compute()"}}}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Output["sessionId"] != "session-1" {
		t.Errorf("expected sessionId, got %v", res.Output["sessionId"])
	}
}

func TestDispatchDelayWithPositiveMs(t *testing.T) {
	d := NewDispatcher(nil, nil)
	inv := Invocation{Step: stepmodel.FlowStep{ID: "s1", Type: stepmodel.StepDelay, Config: map[string]any{"delayMs": 1}}}
	res := d.Dispatch(context.Background(), inv)
	if !res.Success || res.Output["delayedFor"] != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

type fakeSandboxRunner struct {
	runSyncResult  sandbox.RunResult
	runSyncErr     error
	statusSequence []sandbox.AsyncStatus
	pollCount      int
}

func (f *fakeSandboxRunner) RunSync(ctx context.Context, code string, lang sandbox.Language, sctx sandbox.Context) (sandbox.RunResult, error) {
	return f.runSyncResult, f.runSyncErr
}

func (f *fakeSandboxRunner) RunAsync(ctx context.Context, code string, lang sandbox.Language, sctx sandbox.Context) (string, error) {
	return "session-1", nil
}

func (f *fakeSandboxRunner) GetAsyncResult(sessionID string, partialContext map[string]any) (sandbox.AsyncResult, error) {
	if len(f.statusSequence) == 0 {
		return sandbox.AsyncResult{SessionID: sessionID, Status: sandbox.AsyncCompleted, Result: &sandbox.RunResult{Success: true}}, nil
	}
	idx := f.pollCount
	if idx >= len(f.statusSequence) {
		idx = len(f.statusSequence) - 1
	}
	status := f.statusSequence[idx]
	f.pollCount++
	return sandbox.AsyncResult{SessionID: sessionID, Status: status, Result: &sandbox.RunResult{Success: true}}, nil
}
