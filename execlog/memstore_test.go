package execlog

import (
	"context"
	"testing"
	"time"

	"github.com/c360studio/flowengine/stepmodel"
)

func TestMarkStepStartedThenCompletedRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, err := s.MarkStepStarted(ctx, "org1", "user1", "flow1", "exec1", "s1", stepmodel.InputsSnapshot{StepName: "s1"})
	if err != nil {
		t.Fatalf("mark started: %v", err)
	}

	if err := s.MarkStepCompleted(ctx, id, map[string]any{"ok": true}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	logs, err := s.GetExecutionLogs(ctx, "exec1", "org1")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != stepmodel.InvocationCompleted {
		t.Fatalf("expected one completed row, got %+v", logs)
	}
}

func TestMarkStepFailedNormalizesUnknownError(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id, _ := s.MarkStepStarted(ctx, "org1", "user1", "flow1", "exec1", "s1", stepmodel.InputsSnapshot{})

	if err := s.MarkStepFailed(ctx, id, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	logs, _ := s.GetExecutionLogs(ctx, "exec1", "org1")
	if logs[0].Error == nil || logs[0].Error.Message != "boom" {
		t.Fatalf("expected normalized error, got %+v", logs[0].Error)
	}
}

func TestMarkStepSkippedStoresReason(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id, _ := s.MarkStepStarted(ctx, "org1", "user1", "flow1", "exec1", "s1", stepmodel.InputsSnapshot{})

	if err := s.MarkStepSkipped(ctx, id, "executeIf condition evaluated to false"); err != nil {
		t.Fatalf("mark skipped: %v", err)
	}

	logs, _ := s.GetExecutionLogs(ctx, "exec1", "org1")
	if logs[0].Status != stepmodel.InvocationSkipped {
		t.Fatalf("expected skipped status, got %v", logs[0].Status)
	}
	if logs[0].Outputs["skipReason"] != "executeIf condition evaluated to false" {
		t.Fatalf("expected skip reason stored, got %+v", logs[0].Outputs)
	}
}

func TestGetExecutionLogsOrderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id1, _ := s.MarkStepStarted(ctx, "org1", "u", "flow1", "exec1", "a", stepmodel.InputsSnapshot{})
	id2, _ := s.MarkStepStarted(ctx, "org1", "u", "flow1", "exec1", "b", stepmodel.InputsSnapshot{})

	logs, _ := s.GetExecutionLogs(ctx, "exec1", "org1")
	if len(logs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(logs))
	}
	if logs[0].ID != id1 || logs[1].ID != id2 {
		t.Fatalf("expected rows in creation order %s, %s; got %s, %s", id1, id2, logs[0].ID, logs[1].ID)
	}
}

func TestGetExecutionStatsCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id1, _ := s.MarkStepStarted(ctx, "org1", "u", "flow1", "exec1", "a", stepmodel.InputsSnapshot{})
	_ = s.MarkStepCompleted(ctx, id1, nil)
	id2, _ := s.MarkStepStarted(ctx, "org1", "u", "flow1", "exec1", "b", stepmodel.InputsSnapshot{})
	_ = s.MarkStepFailed(ctx, id2, "err")

	stats, err := s.GetExecutionStats(ctx, "org1", time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.CompletedSteps != 1 || stats.FailedSteps != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
