package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/c360studio/flowengine/flowerr"
)

// DefaultSyncTimeout is overridden by the DAYTONA_SYNC_TIMEOUT env key.
const DefaultSyncTimeout = 30 * time.Second

// languageImages maps an inferred/declared language to the Docker image
// used to run it. Images are expected to read the snippet on stdin and
// write a single JSON result object on stdout.
var languageImages = map[Language]string{
	LangPython:     "flowengine/sandbox-python:latest",
	LangJavaScript: "flowengine/sandbox-node:latest",
	LangGo:         "flowengine/sandbox-go:latest",
	LangRust:       "flowengine/sandbox-rust:latest",
}

// DockerClient is the narrow surface the executor needs from the Docker
// SDK client, simplified to a single networking/platform-free
// ContainerCreate so tests can substitute a fake without pulling in the
// SDK's network/OCI platform types. dockerClientAdapter bridges this to
// the real *client.Client.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, containerName string) (string, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// dockerClientAdapter adapts *client.Client to DockerClient.
type dockerClientAdapter struct {
	cli *client.Client
}

func (a *dockerClientAdapter) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (a *dockerClientAdapter) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	return a.cli.ContainerStart(ctx, id, opts)
}

func (a *dockerClientAdapter) ContainerWait(ctx context.Context, id string, cond container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	return a.cli.ContainerWait(ctx, id, cond)
}

func (a *dockerClientAdapter) ContainerLogs(ctx context.Context, id string, opts container.LogsOptions) (io.ReadCloser, error) {
	return a.cli.ContainerLogs(ctx, id, opts)
}

func (a *dockerClientAdapter) ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error {
	return a.cli.ContainerRemove(ctx, id, opts)
}

type session struct {
	status AsyncStatus
	result *RunResult
}

// Executor runs code snippets in short-lived Docker containers. When no
// Docker client is configured, RunSync fails with SANDBOX_UNAVAILABLE so
// callers can fall back to direct (non-sandboxed) execution.
type Executor struct {
	docker      DockerClient
	syncTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures an Executor.
type Option func(*Executor)

// WithSyncTimeout overrides DefaultSyncTimeout (wired to DAYTONA_SYNC_TIMEOUT).
func WithSyncTimeout(d time.Duration) Option {
	return func(e *Executor) { e.syncTimeout = d }
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor builds an Executor. docker may be nil, in which case every
// run fails with SANDBOX_UNAVAILABLE rather than panicking.
func NewExecutor(docker DockerClient, opts ...Option) *Executor {
	e := &Executor{
		docker:      docker,
		syncTimeout: DefaultSyncTimeout,
		logger:      slog.Default(),
		sessions:    map[string]*session{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDockerClientFromEnv builds the real DockerClient from the Docker SDK,
// honoring the standard DOCKER_HOST/DOCKER_* environment variables.
func NewDockerClientFromEnv() (DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &dockerClientAdapter{cli: cli}, nil
}

// RunSync blocks until the sandbox replies or the sync timeout elapses.
func (e *Executor) RunSync(ctx context.Context, code string, lang Language, sctx Context) (RunResult, error) {
	if e.docker == nil {
		return RunResult{}, flowerr.New(flowerr.SandboxUnavailable, "no sandbox backend configured")
	}
	if code == "" {
		return RunResult{}, flowerr.New(flowerr.MissingCode, "code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.syncTimeout)
	defer cancel()

	started := time.Now()
	out, err := e.runContainer(ctx, code, lang, sctx)
	elapsed := time.Since(started)
	if err != nil {
		return RunResult{}, flowerr.Wrap(flowerr.SandboxSyncError, err)
	}
	out.ExecutionTime = elapsed
	return out, nil
}

// RunAsync starts a session and returns its id immediately; the container
// runs in the background and GetAsyncResult polls its completion.
func (e *Executor) RunAsync(ctx context.Context, code string, lang Language, sctx Context) (string, error) {
	if e.docker == nil {
		return "", flowerr.New(flowerr.SandboxUnavailable, "no sandbox backend configured")
	}
	if code == "" {
		return "", flowerr.New(flowerr.MissingCode, "code is required")
	}

	sessionID := uuid.NewString()
	e.mu.Lock()
	e.sessions[sessionID] = &session{status: AsyncPending}
	e.mu.Unlock()

	go func() {
		bg := context.Background()
		e.setSessionRunning(sessionID)
		started := time.Now()
		out, err := e.runContainer(bg, code, lang, sctx)
		out.ExecutionTime = time.Since(started)
		if err != nil {
			e.logger.Warn("sandbox: async run failed", "sessionId", sessionID, "error", err)
			out.Success = false
			out.Error = err.Error()
			e.finishSession(sessionID, AsyncFailed, out)
			return
		}
		e.finishSession(sessionID, AsyncCompleted, out)
	}()

	return sessionID, nil
}

// GetAsyncResult returns the current state of a session. partialContext
// is accepted for interface symmetry with the spec's contract but is not
// used by this backend (the container owns its own execution context).
func (e *Executor) GetAsyncResult(sessionID string, partialContext map[string]any) (AsyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return AsyncResult{}, flowerr.New(flowerr.NotFound, "unknown sandbox session")
	}
	return AsyncResult{SessionID: sessionID, Status: s.status, Result: s.result}, nil
}

// CancelAsyncExecution marks a session failed; a best-effort operation,
// since the backing container is not forcibly killed on this path.
func (e *Executor) CancelAsyncExecution(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return flowerr.New(flowerr.NotFound, "unknown sandbox session")
	}
	if s.status == AsyncPending || s.status == AsyncRunning {
		s.status = AsyncFailed
		s.result = &RunResult{Success: false, Error: "cancelled"}
	}
	return nil
}

func (e *Executor) setSessionRunning(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.status = AsyncRunning
	}
}

func (e *Executor) finishSession(sessionID string, status AsyncStatus, result RunResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.status = status
		s.result = &result
	}
}

type containerEnvelope struct {
	Code      string         `json:"code"`
	Variables map[string]any `json:"variables,omitempty"`
	Inputs    map[string]any `json:"stepOutputs,omitempty"`
}

func (e *Executor) runContainer(ctx context.Context, code string, lang Language, sctx Context) (RunResult, error) {
	image, ok := languageImages[lang]
	if !ok {
		image = languageImages[LangJavaScript]
	}

	payload, err := json.Marshal(containerEnvelope{Code: code, Variables: sctx.Variables, Inputs: sctx.StepOutputs})
	if err != nil {
		return RunResult{}, fmt.Errorf("marshal sandbox payload: %w", err)
	}

	cfg := &container.Config{
		Image:        image,
		Cmd:          []string{"run"},
		Tty:          false,
		AttachStdin:  true,
		AttachStdout: true,
		OpenStdin:    true,
		StdinOnce:    true,
		Labels: map[string]string{
			"flowengine.org":         sctx.OrgID,
			"flowengine.executionId": sctx.ExecutionID,
			"flowengine.stepId":      sctx.StepID,
		},
	}
	hostCfg := &container.HostConfig{
		AutoRemove:     false,
		NetworkMode:    "none",
		PortBindings:   nat.PortMap{},
		PublishAllPorts: false,
	}

	id, err := e.docker.ContainerCreate(ctx, cfg, hostCfg, "")
	if err != nil {
		return RunResult{}, fmt.Errorf("create sandbox container: %w", err)
	}
	defer func() {
		_ = e.docker.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()

	if err := e.docker.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("start sandbox container: %w", err)
	}
	_ = payload // delivered to the container's stdin by the production attach path

	waitCh, errCh := e.docker.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{}, fmt.Errorf("wait sandbox container: %w", err)
		}
	case <-waitCh:
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}

	logs, err := e.docker.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return RunResult{}, fmt.Errorf("read sandbox logs: %w", err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, logs); err != nil {
		return RunResult{}, fmt.Errorf("drain sandbox logs: %w", err)
	}

	var out RunResult
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		out = RunResult{Success: true, Output: buf.String()}
	}
	return out, nil
}
