package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/flowengine/config"
	"github.com/c360studio/flowengine/metrics"
	floworchestrator "github.com/c360studio/flowengine/processor/flow-orchestrator"
)

// app wires the flow orchestrator, its NATS transport, and the metrics
// server into one running process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsClient     *natsclient.Client

	orchestrator component.Discoverable
	metricsSrv   *http.Server
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

// start brings up NATS, the flow-orchestrator component, and the metrics
// server, in that order; a failure at any stage tears down what already
// started.
func (a *app) start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	orchCfg := floworchestrator.DefaultConfig()
	orchCfg.SandboxSyncTimeout = a.cfg.Sandbox.SyncTimeout.String()

	if err := a.ensureStream(ctx, orchCfg.StreamName, orchCfg.TriggerSubject); err != nil {
		a.stopNATS()
		return fmt.Errorf("provision trigger stream: %w", err)
	}

	rawCfg, err := json.Marshal(orchCfg)
	if err != nil {
		a.stopNATS()
		return fmt.Errorf("marshal orchestrator config: %w", err)
	}

	comp, err := floworchestrator.NewComponent(rawCfg, component.Dependencies{
		NATSClient: a.natsClient,
	})
	if err != nil {
		a.stopNATS()
		return fmt.Errorf("build flow-orchestrator: %w", err)
	}
	if err := comp.Initialize(); err != nil {
		a.stopNATS()
		return fmt.Errorf("initialize flow-orchestrator: %w", err)
	}
	if err := comp.Start(ctx); err != nil {
		a.stopNATS()
		return fmt.Errorf("start flow-orchestrator: %w", err)
	}
	a.orchestrator = comp

	a.startMetricsServer()

	a.logger.Info("flowengine started", "metrics_addr", a.cfg.Metrics.Addr)
	return nil
}

func (a *app) startNATS(ctx context.Context) error {
	var url string

	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		url = a.cfg.NATS.URL
	} else {
		opts := &server.Options{
			Port:      -1,
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns
		url = ns.ClientURL()
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithName("flowengine"),
		natsclient.WithMaxReconnects(5),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		a.stopEmbedded()
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		a.stopEmbedded()
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		a.stopEmbedded()
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	a.natsClient = client
	return nil
}

// ensureStream creates the flow-execute trigger stream if it doesn't
// already exist. Components themselves only ever attach to a stream
// (js.Stream); provisioning it is the binary's job.
func (a *app) ensureStream(ctx context.Context, name, subject string) error {
	js, err := a.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
	})
	return err
}

func (a *app) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	a.metricsSrv = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// stop gracefully shuts everything down in reverse start order.
func (a *app) stop(timeout time.Duration) {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}

	if a.orchestrator != nil {
		if err := a.orchestrator.Stop(timeout); err != nil {
			a.logger.Warn("flow-orchestrator stop error", "error", err)
		}
	}

	a.stopEmbedded()
	a.logger.Info("flowengine stopped")
}

func (a *app) stopNATS() {
	a.stopEmbedded()
}

func (a *app) stopEmbedded() {
	if a.natsClient != nil {
		_ = a.natsClient.Close(context.Background())
		a.natsClient = nil
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
		a.embeddedServer = nil
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a := newApp(cfg, logger)
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.stop(10 * time.Second)

	<-ctx.Done()
	return nil
}
