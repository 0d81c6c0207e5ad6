package durable

import (
	"context"
	"errors"
	"testing"
)

func TestStepMemoizesSuccessfulResult(t *testing.T) {
	r := NewMemoryRuntime(nil)
	calls := 0
	fn := func(ctx context.Context, attempt int) (any, error) {
		calls++
		return "ok", nil
	}

	v1, err1 := r.Step(context.Background(), "sub-a", 1, nil, fn)
	v2, err2 := r.Step(context.Background(), "sub-a", 1, nil, fn)

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if v1 != "ok" || v2 != "ok" {
		t.Fatalf("unexpected results: %v %v", v1, v2)
	}
	if calls != 1 {
		t.Errorf("expected fn to run once due to memoization, ran %d times", calls)
	}
}

func TestStepRetriesUntilMaxAttempts(t *testing.T) {
	r := NewMemoryRuntime(nil)
	attempts := 0
	fn := func(ctx context.Context, attempt int) (any, error) {
		attempts++
		return nil, errors.New("transient")
	}

	_, err := r.Step(context.Background(), "sub-b", 3, func(int) Delay { return Delay{} }, fn)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestStepSucceedsOnRetry(t *testing.T) {
	r := NewMemoryRuntime(nil)
	attempts := 0
	fn := func(ctx context.Context, attempt int) (any, error) {
		attempts++
		if attempt < 2 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}

	v, err := r.Step(context.Background(), "sub-c", 3, func(int) Delay { return Delay{} }, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "recovered" {
		t.Errorf("expected recovered, got %v", v)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestStepStopsRetryingWhenContextCancelled(t *testing.T) {
	r := NewMemoryRuntime(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	fn := func(ctx context.Context, attempt int) (any, error) {
		attempts++
		return nil, errors.New("transient")
	}

	_, err := r.Step(ctx, "sub-d", 5, func(int) Delay { return Delay{Milliseconds: 1} }, fn)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected to stop after first attempt once context is cancelled, got %d attempts", attempts)
	}
}
