package step

import (
	"context"
	"time"

	"github.com/c360studio/flowengine/stepmodel"
)

func (d *Dispatcher) handleDelay(ctx context.Context, inv Invocation) stepmodel.StepResult {
	delayMs := configInt(inv.Step.Config, "delayMs", 0)
	if delayMs <= 0 {
		return stepmodel.StepResult{Success: true, Output: map[string]any{"delayedFor": 0}}
	}

	select {
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
	case <-ctx.Done():
	}
	return stepmodel.StepResult{Success: true, Output: map[string]any{"delayedFor": delayMs}}
}
