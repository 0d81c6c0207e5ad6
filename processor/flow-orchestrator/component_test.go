package floworchestrator

import (
	"encoding/json"
	"testing"

	"github.com/c360studio/flowengine/stepmodel"
)

func TestParseExecuteTriggerRawJSON(t *testing.T) {
	data := []byte(`{
		"org_id": "org1",
		"flow_id": "flow1",
		"execution_id": "exec1",
		"steps": [{"id": "s1", "type": "delay", "config": {"delayMs": 1}}]
	}`)

	trigger, err := parseExecuteTrigger(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trigger.OrgID != "org1" || trigger.FlowID != "flow1" || trigger.ExecutionID != "exec1" {
		t.Fatalf("unexpected trigger: %+v", trigger)
	}
	if len(trigger.Steps) != 1 || trigger.Steps[0].Type != stepmodel.StepDelay {
		t.Fatalf("unexpected steps: %+v", trigger.Steps)
	}
}

func TestParseExecuteTriggerBaseMessageEnvelope(t *testing.T) {
	envelope := map[string]any{
		"payload": map[string]any{
			"org_id":       "org1",
			"flow_id":      "flow1",
			"execution_id": "exec1",
			"steps": []map[string]any{
				{"id": "s1", "type": "delay"},
			},
		},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	trigger, err := parseExecuteTrigger(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trigger.ExecutionID != "exec1" {
		t.Fatalf("expected execution_id exec1, got %+v", trigger)
	}
}

func TestExecuteTriggerValidateRequiresFields(t *testing.T) {
	tests := []struct {
		name    string
		trigger ExecuteTrigger
		wantErr bool
	}{
		{"valid", ExecuteTrigger{OrgID: "o", FlowID: "f", ExecutionID: "e", Steps: []stepmodel.FlowStep{{ID: "s1"}}}, false},
		{"missing org", ExecuteTrigger{FlowID: "f", ExecutionID: "e", Steps: []stepmodel.FlowStep{{ID: "s1"}}}, true},
		{"missing flow", ExecuteTrigger{OrgID: "o", ExecutionID: "e", Steps: []stepmodel.FlowStep{{ID: "s1"}}}, true},
		{"missing execution", ExecuteTrigger{OrgID: "o", FlowID: "f", Steps: []stepmodel.FlowStep{{ID: "s1"}}}, true},
		{"no steps", ExecuteTrigger{OrgID: "o", FlowID: "f", ExecutionID: "e"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterRejectsNilRegistry(t *testing.T) {
	if err := Register(nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}
