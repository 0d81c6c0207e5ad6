package step

import (
	"context"
	"fmt"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/sandbox"
	"github.com/c360studio/flowengine/stepmodel"
)

func (d *Dispatcher) handleDataTransform(ctx context.Context, inv Invocation) stepmodel.StepResult {
	script := configString(inv.Step.Config, "script")
	useSandbox := configBool(inv.Step.Config, "useSandbox", true)

	if useSandbox && d.sandboxRunner != nil {
		wrapped := fmt.Sprintf("const input = context.stepOutputs; const flowContext = context; %s", script)
		out, err := d.sandboxRunner.RunSync(ctx, wrapped, sandbox.LangJavaScript, sandboxContextFor(inv))
		if err != nil {
			return errFromSandbox(err, flowerr.TransformError)
		}
		return stepmodel.StepResult{Success: out.Success, Output: asOutputMap(out.Output)}
	}

	value, err := evalExpression(script, exprEnv{
		input:   inv.StepOutputs,
		context: invocationContext(inv),
	})
	if err != nil {
		return errorResult(flowerr.TransformError, err.Error())
	}
	return stepmodel.StepResult{Success: true, Output: asOutputMap(value)}
}

func (d *Dispatcher) handleConditional(ctx context.Context, inv Invocation) stepmodel.StepResult {
	condition := configString(inv.Step.Config, "condition")
	useSandbox := configBool(inv.Step.Config, "useSandbox", true)

	if useSandbox && d.sandboxRunner != nil {
		wrapped := fmt.Sprintf("const context = arguments[0]; return %s;", condition)
		out, err := d.sandboxRunner.RunSync(ctx, wrapped, sandbox.LangJavaScript, sandboxContextFor(inv))
		if err != nil {
			return errFromSandbox(err, flowerr.ConditionError)
		}
		return stepmodel.StepResult{Success: out.Success, Output: map[string]any{"conditionResult": out.Output}}
	}

	value, err := evalExpression(condition, exprEnv{
		input:   inv.StepOutputs,
		context: invocationContext(inv),
	})
	if err != nil {
		return errorResult(flowerr.ConditionError, err.Error())
	}
	return stepmodel.StepResult{Success: true, Output: map[string]any{"conditionResult": value}}
}

func invocationContext(inv Invocation) map[string]any {
	return map[string]any{
		"orgId":       inv.OrgID,
		"userId":      inv.UserID,
		"flowId":      inv.FlowID,
		"executionId": inv.ExecutionID,
		"variables":   inv.Variables,
		"stepOutputs": inv.StepOutputs,
	}
}
