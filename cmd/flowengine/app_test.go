package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/flowengine/config"
)

func TestAppStartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Addr = "127.0.0.1:0"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := newApp(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.start(ctx); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}

	if a.natsClient == nil {
		t.Error("NATS client not initialized")
	}
	if a.embeddedServer == nil {
		t.Error("embedded NATS server not started")
	}
	if a.orchestrator == nil {
		t.Error("flow-orchestrator not started")
	}

	a.stop(5 * time.Second)

	if a.natsClient != nil {
		t.Error("expected NATS client to be cleared after stop")
	}
}
