package throttle

import (
	"testing"

	"github.com/c360studio/flowengine/stepmodel"
)

func TestPolicyForCriticalHTTPIsStricterThanNonCritical(t *testing.T) {
	critical := stepmodel.FlowStep{Type: stepmodel.StepHTTPRequest, Critical: boolPtr(true)}
	noncritical := stepmodel.FlowStep{Type: stepmodel.StepHTTPRequest, Critical: boolPtr(false)}

	cp := PolicyFor(critical)
	np := PolicyFor(noncritical)

	if cp.Concurrency >= np.Concurrency {
		t.Errorf("expected critical concurrency (%d) to be lower than non-critical (%d)", cp.Concurrency, np.Concurrency)
	}
	if cp.Retry.MaxAttempts <= np.Retry.MaxAttempts {
		t.Errorf("expected critical to retry more: got %d vs %d", cp.Retry.MaxAttempts, np.Retry.MaxAttempts)
	}
}

func TestPolicyForDefaultsToTrueWhenCriticalUnset(t *testing.T) {
	step := stepmodel.FlowStep{Type: stepmodel.StepHTTPRequest}
	if !step.IsCritical() {
		t.Fatal("expected unset critical flag to default to true")
	}
	p := PolicyFor(step)
	strict := PolicyFor(stepmodel.FlowStep{Type: stepmodel.StepHTTPRequest, Critical: boolPtr(true)})
	if p.Concurrency != strict.Concurrency {
		t.Errorf("expected unset-critical policy to match explicit critical=true policy")
	}
}

func TestPolicyForDelayHasNoRetry(t *testing.T) {
	p := PolicyFor(stepmodel.FlowStep{Type: stepmodel.StepDelay})
	if p.Retry != nil {
		t.Error("expected delay step to carry no retry policy")
	}
}

func TestPolicyForUnknownTypeFallsBackToConservativeDefault(t *testing.T) {
	p := PolicyFor(stepmodel.FlowStep{Type: stepmodel.StepType("made_up")})
	if p.Concurrency != 2 || p.Retry.MaxAttempts != 1 {
		t.Errorf("unexpected fallback policy: %+v", p)
	}
}

func boolPtr(b bool) *bool { return &b }
