// Package execlog implements the Execution Log Store (C3): an append-then
// update record store keyed by step invocation, backed by a JetStream KV
// bucket. Exactly one row exists per step invocation the Orchestrator
// attempted; a failure to persist "started" is fatal, a failure to persist
// a terminal transition still surfaces but leaves the started row to be
// reconciled by the sweeper.
package execlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/stepmodel"
)

// LogsBucket is the KV bucket name backing execution log rows.
const LogsBucket = "EXECUTION_LOGS"

// Store persists StepInvocation rows. NATSStore is the production
// implementation; tests use an in-memory Store.
type Store interface {
	MarkStepStarted(ctx context.Context, orgID, userID, flowID, executionID, stepID string, inputs stepmodel.InputsSnapshot) (string, error)
	MarkStepCompleted(ctx context.Context, id string, outputs map[string]any) error
	MarkStepFailed(ctx context.Context, id string, errVal any) error
	MarkStepSkipped(ctx context.Context, id string, reason string) error
	GetExecutionLogs(ctx context.Context, executionID, orgID string) ([]stepmodel.StepInvocation, error)
	GetStepLogs(ctx context.Context, flowID, executionID, orgID string) ([]stepmodel.StepInvocation, error)
	GetExecutionStats(ctx context.Context, orgID string, since time.Time) (Stats, error)
}

// Stats is the aggregate returned by GetExecutionStats.
type Stats struct {
	TotalExecutions    int
	CompletedSteps     int
	FailedSteps        int
	SkippedSteps       int
	AvgExecutionTimeMs float64
}

// NATSStore stores StepInvocation rows as one KV entry per id.
type NATSStore struct {
	bucket jetstream.KeyValue
}

// NewNATSStore creates or attaches to the execution-log KV bucket.
func NewNATSStore(ctx context.Context, nc *natsclient.Client) (*NATSStore, error) {
	return NewNATSStoreWithBucket(ctx, nc, LogsBucket)
}

// NewNATSStoreWithBucket is NewNATSStore with an overridable bucket name,
// for deployments that namespace KV buckets per component instance.
func NewNATSStoreWithBucket(ctx context.Context, nc *natsclient.Client, bucket string) (*NATSStore, error) {
	if nc == nil {
		return nil, fmt.Errorf("NATS client required")
	}
	if bucket == "" {
		bucket = LogsBucket
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Step invocation execution log rows",
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}
	return &NATSStore{bucket: kv}, nil
}

func (s *NATSStore) MarkStepStarted(ctx context.Context, orgID, userID, flowID, executionID, stepID string, inputs stepmodel.InputsSnapshot) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	row := stepmodel.StepInvocation{
		ID:          id,
		ExecutionID: executionID,
		OrgID:       orgID,
		FlowID:      flowID,
		StepID:      stepID,
		Attempt:     1,
		Status:      stepmodel.InvocationStarted,
		Inputs:      inputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.put(ctx, row); err != nil {
		return "", flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	return id, nil
}

func (s *NATSStore) MarkStepCompleted(ctx context.Context, id string, outputs map[string]any) error {
	row, err := s.get(ctx, id)
	if err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	row.Status = stepmodel.InvocationCompleted
	row.Outputs = outputs
	row.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, row); err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	return nil
}

func (s *NATSStore) MarkStepFailed(ctx context.Context, id string, errVal any) error {
	row, err := s.get(ctx, id)
	if err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	row.Status = stepmodel.InvocationFailed
	row.Error = flowerr.FromAny(errVal)
	row.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, row); err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	return nil
}

func (s *NATSStore) MarkStepSkipped(ctx context.Context, id string, reason string) error {
	row, err := s.get(ctx, id)
	if err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	row.Status = stepmodel.InvocationSkipped
	if reason != "" {
		if row.Outputs == nil {
			row.Outputs = map[string]any{}
		}
		row.Outputs["skipReason"] = reason
	}
	row.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, row); err != nil {
		return flowerr.Wrap(flowerr.LogUpdateError, err)
	}
	return nil
}

func (s *NATSStore) GetExecutionLogs(ctx context.Context, executionID, orgID string) ([]stepmodel.StepInvocation, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []stepmodel.StepInvocation
	for _, row := range all {
		if row.ExecutionID == executionID && row.OrgID == orgID {
			out = append(out, row)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *NATSStore) GetStepLogs(ctx context.Context, flowID, executionID, orgID string) ([]stepmodel.StepInvocation, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []stepmodel.StepInvocation
	for _, row := range all {
		if row.FlowID == flowID && row.ExecutionID == executionID && row.OrgID == orgID {
			out = append(out, row)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *NATSStore) GetExecutionStats(ctx context.Context, orgID string, since time.Time) (Stats, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	executions := map[string]bool{}
	var totalDuration, completedWithDuration float64
	for _, row := range all {
		if row.OrgID != orgID || row.CreatedAt.Before(since) {
			continue
		}
		executions[row.ExecutionID] = true
		switch row.Status {
		case stepmodel.InvocationCompleted:
			stats.CompletedSteps++
			if !row.UpdatedAt.IsZero() && !row.CreatedAt.IsZero() {
				totalDuration += row.UpdatedAt.Sub(row.CreatedAt).Seconds() * 1000
				completedWithDuration++
			}
		case stepmodel.InvocationFailed:
			stats.FailedSteps++
		case stepmodel.InvocationSkipped:
			stats.SkippedSteps++
		}
	}
	stats.TotalExecutions = len(executions)
	if completedWithDuration > 0 {
		stats.AvgExecutionTimeMs = totalDuration / completedWithDuration
	}
	return stats, nil
}

func (s *NATSStore) put(ctx context.Context, row stepmodel.StepInvocation) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = s.bucket.Put(ctx, row.ID, data)
	return err
}

func (s *NATSStore) get(ctx context.Context, id string) (stepmodel.StepInvocation, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		return stepmodel.StepInvocation{}, err
	}
	var row stepmodel.StepInvocation
	if err := json.Unmarshal(entry.Value(), &row); err != nil {
		return stepmodel.StepInvocation{}, err
	}
	return row, nil
}

func (s *NATSStore) scan(ctx context.Context) ([]stepmodel.StepInvocation, error) {
	keys, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	var out []stepmodel.StepInvocation
	for key := range keys.Keys() {
		row, err := s.get(ctx, key)
		if err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func sortByCreatedAt(rows []stepmodel.StepInvocation) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
