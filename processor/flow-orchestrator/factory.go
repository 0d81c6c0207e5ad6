package floworchestrator

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the flow-orchestrator component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "flow-orchestrator",
		Factory:     NewComponent,
		Schema:      orchestratorSchema,
		Type:        "processor",
		Protocol:    "flow",
		Domain:      "flowengine",
		Description: "Runs FlowExecutions to completion against the condition evaluator, throttling policy, step dispatcher, execution log, and event publisher",
		Version:     "0.1.0",
	})
}
