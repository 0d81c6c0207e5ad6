// Package floworchestrator wires the engine-agnostic Flow Orchestrator
// (C9) core, and everything it depends on (C1 credentials, C5 sandbox,
// C6 auth, C3 execution log, C4 events, C7 dispatch), into a
// component.Discoverable NATS processor: it consumes flow-execute
// triggers off a JetStream stream and runs each one to completion.
package floworchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/flowengine/auth"
	"github.com/c360studio/flowengine/credentials"
	"github.com/c360studio/flowengine/events"
	"github.com/c360studio/flowengine/execlog"
	"github.com/c360studio/flowengine/flow"
	"github.com/c360studio/flowengine/sandbox"
	"github.com/c360studio/flowengine/step"
	"github.com/c360studio/flowengine/stepmodel"
)

// Component implements the flow-orchestrator processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	orchestrator *flow.Orchestrator

	// JetStream consumer
	consumer jetstream.Consumer
	stream   jetstream.Stream

	// bounds concurrent in-flight FlowExecutions
	sem chan struct{}

	// Lifecycle management
	running    bool
	startTime  time.Time
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	// Metrics
	executionsStarted   int64
	executionsCompleted int64
	executionsFailed    int64
	lastActivity        time.Time
}

// NewComponent creates a new flow-orchestrator component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.TriggerSubject == "" {
		config.TriggerSubject = defaults.TriggerSubject
	}
	if config.ExecLogBucket == "" {
		config.ExecLogBucket = defaults.ExecLogBucket
	}
	if config.CredentialBucket == "" {
		config.CredentialBucket = defaults.CredentialBucket
	}
	if config.MaxConcurrentExecutions == 0 {
		config.MaxConcurrentExecutions = defaults.MaxConcurrentExecutions
	}
	if config.SandboxSyncTimeout == "" {
		config.SandboxSyncTimeout = defaults.SandboxSyncTimeout
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	orchestrator, err := buildOrchestrator(context.Background(), config, deps.NATSClient, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &Component{
		name:         "flow-orchestrator",
		config:       config,
		natsClient:   deps.NATSClient,
		logger:       logger,
		platform:     deps.Platform,
		orchestrator: orchestrator,
		sem:          make(chan struct{}, config.MaxConcurrentExecutions),
	}, nil
}

// buildOrchestrator assembles C1/C5/C6/C3/C4/C7 into a *flow.Orchestrator.
// Each backing store degrades gracefully when nc is nil (in-memory /
// no-op), so the component can be constructed and unit-tested without a
// live NATS server.
func buildOrchestrator(ctx context.Context, config Config, nc *natsclient.Client, logger *slog.Logger) (*flow.Orchestrator, error) {
	var credStore credentials.Store
	if nc != nil {
		store, err := credentials.NewNATSStoreWithBucket(ctx, nc, config.CredentialBucket)
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		credStore = store
	} else {
		credStore = credentials.NewMemStore()
	}
	resolver := credentials.NewResolver(credStore, credentials.WithLogger(logger))

	dockerClient, err := sandbox.NewDockerClientFromEnv()
	if err != nil {
		logger.Warn("sandbox executor running without a docker backend; sandbox_sync/sandbox_async steps will fail with SANDBOX_UNAVAILABLE", "error", err)
		dockerClient = nil
	}
	sandboxExecutor := sandbox.NewExecutor(dockerClient,
		sandbox.WithSyncTimeout(config.GetSandboxSyncTimeout()),
		sandbox.WithLogger(logger))

	headerBuilder := auth.NewBuilder(resolver, nil, logger)

	dispatcher := step.NewDispatcher(sandboxExecutor, headerBuilder, step.WithLogger(logger))

	var logs execlog.Store
	if nc != nil {
		store, err := execlog.NewNATSStoreWithBucket(ctx, nc, config.ExecLogBucket)
		if err != nil {
			return nil, fmt.Errorf("execution log store: %w", err)
		}
		logs = store
	} else {
		logs = execlog.NewMemStore()
	}

	publisher := events.NewNATSPublisher(nc, logger)

	return flow.NewOrchestrator(dispatcher, logs, publisher, flow.WithLogger(logger)), nil
}

// Initialize prepares the component. The orchestrator and its backing
// stores are already built in NewComponent, so there is nothing further
// to load from disk.
func (c *Component) Initialize() error {
	c.logger.Debug("flow-orchestrator initialized",
		"stream", c.config.StreamName,
		"trigger_subject", c.config.TriggerSubject)
	return nil
}

// Start begins consuming flow-execute triggers.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}
	c.stream = stream

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.TriggerSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Minute,
		MaxDeliver:    1,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	c.logger.Info("flow-orchestrator started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.TriggerSubject,
		"max_concurrent_executions", c.config.MaxConcurrentExecutions)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancelFunc = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop continuously fetches flow-execute triggers and runs each
// one; a single FlowExecution never blocks another (bounded by c.sem).
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			c.handleTrigger(ctx, msg)
		}
	}
}

// handleTrigger parses one flow-execute trigger and runs it to
// completion, bounded by the concurrency semaphore. Malformed or invalid
// triggers are permanently terminated (Term, not Nak) since no retry
// will make them well-formed.
func (c *Component) handleTrigger(ctx context.Context, msg jetstream.Msg) {
	trigger, err := parseExecuteTrigger(msg.Data())
	if err != nil {
		c.logger.Error("failed to parse flow-execute trigger", "error", err)
		_ = msg.Term()
		return
	}
	if err := trigger.Validate(); err != nil {
		c.logger.Error("invalid flow-execute trigger", "error", err)
		_ = msg.Term()
		return
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	c.updateLastActivity()
	c.addCount(&c.executionsStarted, 1)

	go func() {
		defer func() { <-c.sem }()

		result := c.orchestrator.Run(ctx, flow.Input{
			OrgID:       trigger.OrgID,
			UserID:      trigger.UserID,
			FlowID:      trigger.FlowID,
			ExecutionID: trigger.ExecutionID,
			Steps:       trigger.Steps,
			Variables:   trigger.Variables,
		})

		switch result.Status {
		case stepmodel.ExecutionFailed:
			c.addCount(&c.executionsFailed, 1)
		default:
			c.addCount(&c.executionsCompleted, 1)
		}

		c.logger.Info("flow execution finished",
			"flow_id", trigger.FlowID,
			"execution_id", trigger.ExecutionID,
			"status", result.Status,
			"completed_steps", result.CompletedSteps,
			"failed_steps", result.FailedSteps,
			"skipped_steps", result.SkippedSteps)

		if err := msg.Ack(); err != nil {
			c.logger.Warn("failed to ack flow-execute trigger", "error", err)
		}
	}()
}

func (c *Component) addCount(counter *int64, delta int64) {
	c.mu.Lock()
	*counter += delta
	c.mu.Unlock()
}

func (c *Component) updateLastActivity() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
	}

	c.running = false
	c.logger.Info("flow-orchestrator stopped",
		"executions_started", c.executionsStarted,
		"executions_completed", c.executionsCompleted,
		"executions_failed", c.executionsFailed)

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "flow-orchestrator",
		Type:        "processor",
		Description: "Runs FlowExecutions: walks a flow's steps through the condition evaluator, throttling policy, step dispatcher, execution log, and event publisher",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return orchestratorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "stopped"
	if c.running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    c.running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.executionsFailed),
		Uptime:     time.Since(c.startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.lastActivity,
	}
}
