package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/c360studio/semstreams/natsclient"
)

// maxPublishAttempts bounds the internal retry loop: 3 attempts with waits
// of 2^n * 1s for n in [0,1] (1s, then 2s) between them before giving up.
const maxPublishAttempts = 3

// NATSPublisher publishes events on the per-execution and per-org
// channels. Connection is initialized lazily: when nc is nil the
// publisher is a silent no-op, so steps still execute when no event
// backend is configured.
type NATSPublisher struct {
	nc     *natsclient.Client
	logger *slog.Logger
}

// NewNATSPublisher builds a publisher; nc may be nil.
func NewNATSPublisher(nc *natsclient.Client, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

func (p *NATSPublisher) PublishStepEvent(orgID, executionID string, event StepEvent) {
	p.publish(ExecutionChannel(orgID, executionID), "step-status", event)
}

func (p *NATSPublisher) PublishExecutionEvent(orgID, executionID string, event ExecutionEvent) {
	p.publish(ExecutionChannel(orgID, executionID), "execution-status", event)
	p.publish(OrgChannel(orgID), "execution-status", event)
}

func (p *NATSPublisher) publish(subject, eventName string, payload any) {
	if p.nc == nil {
		return
	}

	data, err := json.Marshal(envelope{Name: eventName, Data: payload})
	if err != nil {
		p.logger.Warn("events: failed to marshal payload", "subject", subject, "error", err)
		return
	}

	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.nc.Publish(ctx, subject, data)
	}

	bo := backoff.WithMaxRetries(newPublishBackOff(), maxPublishAttempts-1)
	if err := backoff.Retry(op, bo); err != nil {
		p.logger.Warn("events: dropping event after exhausting retries", "subject", subject, "event", eventName, "error", err)
	}
}

func newPublishBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	return eb
}

type envelope struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}
