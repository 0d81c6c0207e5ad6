package floworchestrator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// orchestratorSchema defines the configuration schema.
var orchestratorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the flow-orchestrator component.
type Config struct {
	// StreamName is the JetStream stream carrying flow-execute triggers.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for flow-execute triggers,category:basic,default:FLOWS"`

	// ConsumerName is the durable consumer name for trigger consumption.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:flow-orchestrator"`

	// TriggerSubject is the subject pattern for flow-execute triggers.
	TriggerSubject string `json:"trigger_subject" schema:"type:string,description:Subject pattern for flow-execute triggers,category:basic,default:flows.execute"`

	// ExecLogBucket is the JetStream KV bucket backing the Execution Log Store (C3).
	ExecLogBucket string `json:"exec_log_bucket" schema:"type:string,description:KV bucket for the execution log,category:basic,default:EXEC_LOGS"`

	// CredentialBucket is the JetStream KV bucket backing the Credential Resolver (C1).
	CredentialBucket string `json:"credential_bucket" schema:"type:string,description:KV bucket for tool credentials,category:basic,default:TOOL_CREDS"`

	// MaxConcurrentExecutions bounds the number of FlowExecutions this
	// instance runs at once. The throttling policy table's per-step-type
	// concurrency and rate-limit values are not enforced; only its retry
	// settings are applied.
	MaxConcurrentExecutions int `json:"max_concurrent_executions" schema:"type:int,description:Maximum concurrent flow executions,category:advanced,default:10,min:1,max:100"`

	// SandboxSyncTimeout bounds a single sandbox_sync container run.
	SandboxSyncTimeout string `json:"sandbox_sync_timeout" schema:"type:string,description:Timeout for sandbox_sync runs,category:advanced,default:30s"`

	// DockerHost is carried in the configuration but not read when the
	// component is built: the Docker client always comes from the
	// environment (DOCKER_HOST, etc.) via docker/client's FromEnv.
	DockerHost string `json:"docker_host,omitempty" schema:"type:string,description:Docker daemon endpoint override,category:advanced"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:              "FLOWS",
		ConsumerName:            "flow-orchestrator",
		TriggerSubject:          "flows.execute",
		ExecLogBucket:           "EXEC_LOGS",
		CredentialBucket:        "TOOL_CREDS",
		MaxConcurrentExecutions: 10,
		SandboxSyncTimeout:      "30s",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "flow-triggers",
					Type:        "jetstream",
					Subject:     "flows.execute",
					StreamName:  "FLOWS",
					Description: "Receive flow-execute triggers",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "flow-events",
					Type:        "nats",
					Subject:     "flows.>",
					Description: "Publish step and execution events",
					Required:    false,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.TriggerSubject == "" {
		return fmt.Errorf("trigger_subject is required")
	}
	if c.ExecLogBucket == "" {
		return fmt.Errorf("exec_log_bucket is required")
	}
	if c.CredentialBucket == "" {
		return fmt.Errorf("credential_bucket is required")
	}
	if c.MaxConcurrentExecutions < 1 {
		return fmt.Errorf("max_concurrent_executions must be at least 1")
	}
	if c.MaxConcurrentExecutions > 100 {
		return fmt.Errorf("max_concurrent_executions cannot exceed 100")
	}
	if c.SandboxSyncTimeout != "" {
		if _, err := time.ParseDuration(c.SandboxSyncTimeout); err != nil {
			return fmt.Errorf("invalid sandbox_sync_timeout: %w", err)
		}
	}
	return nil
}

// GetSandboxSyncTimeout returns the sandbox_sync timeout, defaulting to 30s.
func (c *Config) GetSandboxSyncTimeout() time.Duration {
	if c.SandboxSyncTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.SandboxSyncTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

