package step

import (
	"context"
	"errors"
	"time"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/sandbox"
	"github.com/c360studio/flowengine/stepmodel"
)

func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func configBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func configInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func sandboxContextFor(inv Invocation) sandbox.Context {
	return sandbox.Context{
		OrgID:       inv.OrgID,
		UserID:      inv.UserID,
		FlowID:      inv.FlowID,
		StepID:      inv.Step.ID,
		ExecutionID: inv.ExecutionID,
		Variables:   inv.Variables,
		StepOutputs: inv.StepOutputs,
	}
}

func languageFor(cfg map[string]any, code string) sandbox.Language {
	if l := configString(cfg, "language"); l != "" {
		return sandbox.Language(l)
	}
	return sandbox.DetectLanguage(code)
}

func (d *Dispatcher) handleSandboxSync(ctx context.Context, inv Invocation) stepmodel.StepResult {
	code := configString(inv.Step.Config, "code")
	if code == "" {
		return errorResult(flowerr.MissingCode, "code is required")
	}
	if d.sandboxRunner == nil {
		return errorResult(flowerr.SandboxUnavailable, "no sandbox backend configured")
	}

	lang := languageFor(inv.Step.Config, code)
	out, err := d.sandboxRunner.RunSync(ctx, code, lang, sandboxContextFor(inv))
	if err != nil {
		return errFromSandbox(err, flowerr.SandboxSyncError)
	}
	return stepmodel.StepResult{
		Success: out.Success,
		Output:  asOutputMap(out.Output),
		Metadata: map[string]any{
			"executionTime": out.ExecutionTime.Milliseconds(),
		},
	}
}

func (d *Dispatcher) handleSandboxAsync(ctx context.Context, inv Invocation) stepmodel.StepResult {
	code := configString(inv.Step.Config, "code")
	if code == "" {
		return errorResult(flowerr.MissingCode, "code is required")
	}
	if d.sandboxRunner == nil {
		return errorResult(flowerr.SandboxUnavailable, "no sandbox backend configured")
	}

	lang := languageFor(inv.Step.Config, code)
	sessionID, err := d.sandboxRunner.RunAsync(ctx, code, lang, sandboxContextFor(inv))
	if err != nil {
		return errFromSandbox(err, flowerr.SandboxUnavailable)
	}

	if !configBool(inv.Step.Config, "waitForCompletion", false) {
		return stepmodel.StepResult{
			Success: true,
			Output:  map[string]any{"sessionId": sessionID, "message": "sandbox session started"},
		}
	}

	pollInterval := time.Duration(configInt(inv.Step.Config, "pollInterval", 1000)) * time.Millisecond
	maxAttempts := configInt(inv.Step.Config, "maxPollAttempts", 300)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := d.sandboxRunner.GetAsyncResult(sessionID, nil)
		if err != nil {
			return errFromSandbox(err, flowerr.SandboxUnavailable)
		}
		switch res.Status {
		case sandbox.AsyncCompleted:
			var output map[string]any
			if res.Result != nil {
				output = asOutputMap(res.Result.Output)
			}
			return stepmodel.StepResult{
				Success:  true,
				Output:   output,
				Metadata: map[string]any{"sessionId": sessionID, "pollAttempts": attempt + 1},
			}
		case sandbox.AsyncFailed:
			msg := "sandbox execution failed"
			if res.Result != nil && res.Result.Error != "" {
				msg = res.Result.Error
			}
			return stepmodel.StepResult{
				Success:  false,
				Error:    flowerr.New(flowerr.SandboxSyncError, msg),
				Metadata: map[string]any{"sessionId": sessionID, "pollAttempts": attempt + 1},
			}
		}

		select {
		case <-ctx.Done():
			return stepmodel.StepResult{
				Success:  false,
				Error:    flowerr.New(flowerr.SandboxAsyncTimeout, "context cancelled while polling sandbox session"),
				Metadata: map[string]any{"sessionId": sessionID, "pollAttempts": attempt + 1},
			}
		case <-time.After(pollInterval):
		}
	}

	return stepmodel.StepResult{
		Success:  false,
		Error:    flowerr.New(flowerr.SandboxAsyncTimeout, "sandbox session did not complete within maxPollAttempts"),
		Metadata: map[string]any{"sessionId": sessionID, "pollAttempts": maxAttempts},
	}
}

func (d *Dispatcher) handleCodeExecution(ctx context.Context, inv Invocation) stepmodel.StepResult {
	mode := configString(inv.Step.Config, "mode")
	if mode == "async" {
		return d.handleSandboxAsync(ctx, inv)
	}
	return d.handleSandboxSync(ctx, inv)
}

func errFromSandbox(err error, fallback flowerr.Code) stepmodel.StepResult {
	var fe *flowerr.Error
	if errors.As(err, &fe) {
		return stepmodel.StepResult{Success: false, Error: fe}
	}
	return errorResult(fallback, err.Error())
}

func errorResult(code flowerr.Code, message string) stepmodel.StepResult {
	return stepmodel.StepResult{Success: false, Error: flowerr.New(code, message)}
}

func asOutputMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"data": v}
}

func unknownStepType(t stepmodel.StepType) stepmodel.StepResult {
	return errorResult(flowerr.UnknownStepType, "unknown step type: "+string(t))
}
