package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comfyserve/internal/workflow"
)

// Polling cadence against /history: start fast, back off towards maxPollInterval.
const (
	initialPollInterval = 100 * time.Millisecond
	maxPollInterval     = 2 * time.Second
	pollBackoffFactor   = 1.5
)

// Client talks to a ComfyUI instance over its HTTP API, with an optional
// websocket subscription for progress events.
type Client struct {
	baseURL  string
	clientID string
	httpc    *http.Client
	log      *zap.Logger
}

// New creates a client for the given base URL (e.g. http://127.0.0.1:8188).
func New(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: uuid.New().String(),
		httpc:    &http.Client{},
		log:      zap.L(),
	}
}

// ClientID returns the unique id used to correlate websocket messages.
func (c *Client) ClientID() string {
	return c.clientID
}

// Execution is the handle returned by a queue submission. It correlates a
// submitted graph with its eventual history entry.
type Execution struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

// promptError is ComfyUI's error body for a rejected /prompt submission.
type promptError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}

// QueuePrompt submits a workflow graph for queued execution.
func (c *Client) QueuePrompt(ctx context.Context, g workflow.Graph) (*Execution, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"prompt":    g,
		"client_id": c.clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		perr := &promptError{}
		if json.Unmarshal(body, perr) == nil && perr.Error.Message != "" {
			return nil, &ExecutionError{
				Kind:    perr.Error.Type,
				Message: perr.Error.Message,
				Details: perr.Error.Details,
			}
		}
		return nil, &ExecutionError{
			Message: fmt.Sprintf("ComfyUI returned status %d: %s", resp.StatusCode, body),
		}
	}

	exec := &Execution{}
	if err := json.Unmarshal(body, exec); err != nil {
		return nil, &ExecutionError{Message: fmt.Sprintf("malformed queue response: %v", err)}
	}
	if exec.PromptID == "" {
		return nil, &ExecutionError{Message: "no prompt_id in ComfyUI response"}
	}

	c.log.Info("workflow queued", zap.String("prompt_id", exec.PromptID), zap.Int("number", exec.Number))
	return exec, nil
}

// HistoryEntry is one completed (or failed) execution in the engine's history.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  ExecutionStatus       `json:"status"`
}

type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// ImageRef locates a generated artifact on the engine.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type ExecutionStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages"`
}

// History fetches the history map for a single prompt id. An empty map means
// the prompt has not reached a terminal state yet.
func (c *Client) History(ctx context.Context, promptID string) (map[string]*HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ExecutionError{
			PromptID: promptID,
			Message:  fmt.Sprintf("failed to get history: status %d: %s", resp.StatusCode, body),
		}
	}

	history := make(map[string]*HistoryEntry)
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, &ExecutionError{PromptID: promptID, Message: fmt.Sprintf("malformed history: %v", err)}
	}
	return history, nil
}

// WaitForCompletion polls the history endpoint until the prompt reaches a
// terminal state or the timeout elapses. The engine-side job keeps running
// after a timeout; only the wait is abandoned.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, timeout time.Duration) (*HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := initialPollInterval
	for {
		history, err := c.History(ctx, promptID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{PromptID: promptID, Timeout: timeout}
			}
			return nil, err
		}

		if entry, ok := history[promptID]; ok {
			if execErr := entry.executionError(promptID); execErr != nil {
				return nil, execErr
			}
			return entry, nil
		}

		select {
		case <-ctx.Done():
			return nil, &TimeoutError{PromptID: promptID, Timeout: timeout}
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * pollBackoffFactor)
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}

// executionError extracts an engine-reported failure from a history entry.
func (e *HistoryEntry) executionError(promptID string) *ExecutionError {
	if e.Status.StatusStr != "error" {
		return nil
	}

	execErr := &ExecutionError{PromptID: promptID, Message: "execution failed"}
	// status messages are [name, data] pairs; pull details from execution_error
	for _, raw := range e.Status.Messages {
		var pair []json.RawMessage
		if json.Unmarshal(raw, &pair) != nil || len(pair) < 2 {
			continue
		}
		var name string
		if json.Unmarshal(pair[0], &name) != nil || name != "execution_error" {
			continue
		}
		var data struct {
			NodeID           string `json:"node_id"`
			NodeType         string `json:"node_type"`
			ExceptionMessage string `json:"exception_message"`
			ExceptionType    string `json:"exception_type"`
		}
		if json.Unmarshal(pair[1], &data) == nil {
			execErr.Kind = data.ExceptionType
			execErr.Message = data.ExceptionMessage
			execErr.NodeErrors = append(execErr.NodeErrors,
				fmt.Sprintf("node %s (%s): %s", data.NodeID, data.NodeType, data.ExceptionMessage))
		}
	}
	return execErr
}

// Images flattens every image reference in the entry's outputs.
func (e *HistoryEntry) Images() []ImageRef {
	var refs []ImageRef
	for _, out := range e.Outputs {
		refs = append(refs, out.Images...)
	}
	return refs
}

// FetchImage retrieves a generated artifact's bytes from the engine.
func (c *Client) FetchImage(ctx context.Context, ref ImageRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ViewURL(ref), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ExecutionError{
			Message: fmt.Sprintf("failed to get image %s: status %d: %s", ref.Filename, resp.StatusCode, body),
		}
	}
	return io.ReadAll(resp.Body)
}

// ViewURL builds the engine URL serving an artifact's bytes.
func (c *Client) ViewURL(ref ImageRef) string {
	params := url.Values{}
	params.Add("filename", ref.Filename)
	params.Add("subfolder", ref.Subfolder)
	params.Add("type", ref.Type)
	return c.baseURL + "/view?" + params.Encode()
}

// SystemStats reports the engine's system information; used as a health probe.
type SystemStats struct {
	System struct {
		OS            string `json:"os"`
		PythonVersion string `json:"python_version"`
	} `json:"system"`
	Devices []struct {
		Name      string `json:"name"`
		Type      string `json:"type"`
		VRAMTotal int64  `json:"vram_total"`
		VRAMFree  int64  `json:"vram_free"`
	} `json:"devices"`
}

func (c *Client) SystemStats(ctx context.Context) (*SystemStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ConnectionError{Err: fmt.Errorf("system_stats returned status %d", resp.StatusCode)}
	}

	stats := &SystemStats{}
	if err := json.NewDecoder(resp.Body).Decode(stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Healthy reports whether the engine answers its stats endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.SystemStats(ctx)
	return err == nil
}

// WaitForReady polls until the engine is reachable or the context expires.
// This is deployment bootstrap, not part of the request path.
func (c *Client) WaitForReady(ctx context.Context, interval time.Duration) error {
	for {
		if c.Healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ComfyUI not ready: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
