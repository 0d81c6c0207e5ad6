// Package sandbox implements the Sandbox Executor (C5): synchronous and
// session-based asynchronous code execution against a Docker-backed
// runtime. The executor treats the backend as opaque to its callers —
// handlers in the step package never see a container directly.
package sandbox

import (
	"strings"
	"time"
)

// Context is passed through to the sandbox runtime verbatim.
type Context struct {
	OrgID       string
	UserID      string
	FlowID      string
	StepID      string
	ExecutionID string
	Variables   map[string]any
	StepOutputs map[string]any
	AuthHeaders map[string]string
}

// Language is the inferred or declared source language of a snippet.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangGo         Language = "go"
	LangRust       Language = "rust"
)

// RunResult is the outcome of a synchronous or completed asynchronous run.
type RunResult struct {
	Success       bool
	Output        any
	Error         string
	ExecutionTime time.Duration
}

// AsyncStatus is the lifecycle status of a session-based execution.
type AsyncStatus string

const (
	AsyncPending   AsyncStatus = "pending"
	AsyncRunning   AsyncStatus = "running"
	AsyncCompleted AsyncStatus = "completed"
	AsyncFailed    AsyncStatus = "failed"
)

// AsyncResult is returned by GetAsyncResult.
type AsyncResult struct {
	SessionID string
	Status    AsyncStatus
	Result    *RunResult
}

// DetectLanguage infers the language of code from syntactic markers, per
// the closed inference table: python, javascript, go, rust, defaulting to
// javascript when nothing matches.
func DetectLanguage(code string) Language {
	switch {
	case containsAny(code, "def ", "import ", "print("):
		return LangPython
	case containsAny(code, "func ", "package ", "fmt.Print"):
		return LangGo
	case containsAny(code, "fn ", "let mut ", "println!"):
		return LangRust
	case containsAny(code, "function", "const ", "console.log"):
		return LangJavaScript
	default:
		return LangJavaScript
	}
}

func containsAny(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
