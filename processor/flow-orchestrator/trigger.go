package floworchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/flowengine/stepmodel"
)

// FlowExecuteType is the message type for flow-execute triggers.
var FlowExecuteType = message.Type{Domain: "flows", Category: "execute", Version: "v1"}

// ExecuteTrigger is the payload accepted on the flow-execute trigger
// subject: everything the Flow Orchestrator (C9) needs to create a
// FlowExecution and run it.
type ExecuteTrigger struct {
	OrgID       string               `json:"org_id"`
	UserID      string               `json:"user_id"`
	FlowID      string               `json:"flow_id"`
	ExecutionID string               `json:"execution_id"`
	Steps       []stepmodel.FlowStep `json:"steps"`
	Variables   map[string]any       `json:"variables,omitempty"`
}

// Schema implements message.Payload.
func (t *ExecuteTrigger) Schema() message.Type { return FlowExecuteType }

// Validate implements message.Payload.
func (t *ExecuteTrigger) Validate() error {
	if t.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if t.FlowID == "" {
		return fmt.Errorf("flow_id is required")
	}
	if t.ExecutionID == "" {
		return fmt.Errorf("execution_id is required")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("steps must not be empty")
	}
	return nil
}

// parseExecuteTrigger unmarshals a NATS message into an ExecuteTrigger,
// accepting either a message.BaseMessage envelope (the
// component-to-component convention this engine uses everywhere else) or
// raw JSON, mirroring the teacher's workflow.ParseNATSMessage fallback
// chain without the async-task/generic-json envelope cases this
// component never receives.
func parseExecuteTrigger(data []byte) (*ExecuteTrigger, error) {
	var rawMsg struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &rawMsg); err == nil && len(rawMsg.Payload) > 0 {
		var trigger ExecuteTrigger
		if err := json.Unmarshal(rawMsg.Payload, &trigger); err != nil {
			return nil, fmt.Errorf("unmarshal BaseMessage payload: %w", err)
		}
		return &trigger, nil
	}

	var trigger ExecuteTrigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return nil, fmt.Errorf("unmarshal raw trigger: %w", err)
	}
	return &trigger, nil
}
