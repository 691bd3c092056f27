package comfy

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionError wraps a transport failure reaching the engine.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to ComfyUI: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError carries the engine's own failure payload.
type ExecutionError struct {
	PromptID   string
	Kind       string
	Message    string
	Details    string
	NodeErrors []string
}

func (e *ExecutionError) Error() string {
	msg := e.Message
	if len(e.NodeErrors) > 0 {
		msg = strings.Join(e.NodeErrors, "; ")
	}
	if e.PromptID != "" {
		return fmt.Sprintf("workflow execution failed (prompt %s): %s", e.PromptID, msg)
	}
	return "workflow execution failed: " + msg
}

// TimeoutError is returned when the engine did not reach a terminal state in
// time. The prompt id is included for operator diagnosis; the engine-side job
// is not cancelled.
type TimeoutError struct {
	PromptID string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("workflow execution timed out after %s (prompt %s)", e.Timeout, e.PromptID)
}
