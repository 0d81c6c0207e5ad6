package execlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/stepmodel"
)

// MemStore is an in-memory Store, used by orchestrator tests and by
// deployments that don't need durability across restarts (rare; the
// production default is NATSStore).
type MemStore struct {
	mu   sync.Mutex
	rows map[string]stepmodel.StepInvocation
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: map[string]stepmodel.StepInvocation{}}
}

func (s *MemStore) MarkStepStarted(_ context.Context, orgID, userID, flowID, executionID, stepID string, inputs stepmodel.InputsSnapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now().UTC()
	s.rows[id] = stepmodel.StepInvocation{
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
	return id, nil
}

func (s *MemStore) MarkStepCompleted(_ context.Context, id string, outputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return flowerr.New(flowerr.LogUpdateError, "no such invocation")
	}
	row.Status = stepmodel.InvocationCompleted
	row.Outputs = outputs
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

func (s *MemStore) MarkStepFailed(_ context.Context, id string, errVal any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return flowerr.New(flowerr.LogUpdateError, "no such invocation")
	}
	row.Status = stepmodel.InvocationFailed
	row.Error = flowerr.FromAny(errVal)
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

func (s *MemStore) MarkStepSkipped(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return flowerr.New(flowerr.LogUpdateError, "no such invocation")
	}
	row.Status = stepmodel.InvocationSkipped
	if reason != "" {
		if row.Outputs == nil {
			row.Outputs = map[string]any{}
		}
		row.Outputs["skipReason"] = reason
	}
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

func (s *MemStore) GetExecutionLogs(_ context.Context, executionID, orgID string) ([]stepmodel.StepInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stepmodel.StepInvocation
	for _, row := range s.rows {
		if row.ExecutionID == executionID && row.OrgID == orgID {
			out = append(out, row)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *MemStore) GetStepLogs(_ context.Context, flowID, executionID, orgID string) ([]stepmodel.StepInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stepmodel.StepInvocation
	for _, row := range s.rows {
		if row.FlowID == flowID && row.ExecutionID == executionID && row.OrgID == orgID {
			out = append(out, row)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *MemStore) GetExecutionStats(_ context.Context, orgID string, since time.Time) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	executions := map[string]bool{}
	var totalDuration, completedWithDuration float64
	for _, row := range s.rows {
		if row.OrgID != orgID || row.CreatedAt.Before(since) {
			continue
		}
		executions[row.ExecutionID] = true
		switch row.Status {
		case stepmodel.InvocationCompleted:
			stats.CompletedSteps++
			totalDuration += row.UpdatedAt.Sub(row.CreatedAt).Seconds() * 1000
			completedWithDuration++
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
