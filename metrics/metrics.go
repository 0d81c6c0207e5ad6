// Package metrics defines the Prometheus collectors the engine exposes,
// per the metrics surface in the specification's external interfaces.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// StepExecutionSeconds records handler duration per (org, flow, stepKey).
var StepExecutionSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "step_execution_seconds",
		Help:    "Duration of step handler execution.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"org", "flow", "stepKey"},
)

// StepErrorsTotal counts failed step invocations per (org, flow, stepKey).
var StepErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "step_errors_total",
		Help: "Count of step invocations that ended in failure.",
	},
	[]string{"org", "flow", "stepKey"},
)

// StepRetriesTotal counts retry attempts per (org, flow, stepKey).
var StepRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "step_retries_total",
		Help: "Count of step retry attempts issued by the throttling policy.",
	},
	[]string{"org", "flow", "stepKey"},
)

// AuthInjectionTotal counts every auth-header resolution attempt,
// including authType="none" when no headers were produced.
var AuthInjectionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_injection_total",
		Help: "Count of auth header resolution attempts by outcome.",
	},
	[]string{"org", "stepId", "stepType", "toolName", "authType"},
)

// ValidationErrorsTotal counts rule/config validation failures.
var ValidationErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Count of validation failures encountered while preparing a step.",
	},
	[]string{"org", "actionKey", "context", "errorType"},
)

// Registry bundles every collector the engine exposes, for a single
// registration call from cmd/flowengine.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		StepExecutionSeconds,
		StepErrorsTotal,
		StepRetriesTotal,
		AuthInjectionTotal,
		ValidationErrorsTotal,
	)
}
