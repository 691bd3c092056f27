package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ProgressEvent is one translated websocket message. The stream is advisory:
// completion is decided by history polling, not by the socket.
type ProgressEvent struct {
	Type           string // queue, started, executing, progress, output, done, interrupted, error
	PromptID       string
	NodeID         string
	Value          int
	Max            int
	QueueRemaining int
	Images         []ImageRef
	Err            *ExecutionError
}

// Listen subscribes to the engine's websocket and emits progress events until
// the context is cancelled or the connection drops, then closes the channel.
func (c *Client) Listen(ctx context.Context) (<-chan ProgressEvent, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws?clientId=" + c.clientID
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("websocket dial %s: %w", wsURL, err)}
	}

	events := make(chan ProgressEvent, 16)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn("websocket read failed", zap.Error(err))
				}
				return
			}

			msg := &wsMessage{}
			if err := json.Unmarshal(raw, msg); err != nil {
				c.log.Warn("malformed websocket message", zap.Error(err))
				continue
			}

			if ev, ok := translate(msg); ok {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func translate(msg *wsMessage) (ProgressEvent, bool) {
	switch data := msg.Data.(type) {
	case *wsStatus:
		return ProgressEvent{Type: "queue", QueueRemaining: data.Status.ExecInfo.QueueRemaining}, true
	case *wsExecutionStart:
		return ProgressEvent{Type: "started", PromptID: data.PromptID}, true
	case *wsExecuting:
		if data.Node == nil {
			// final node processed
			return ProgressEvent{Type: "done", PromptID: data.PromptID}, true
		}
		return ProgressEvent{Type: "executing", PromptID: data.PromptID, NodeID: *data.Node}, true
	case *wsProgress:
		return ProgressEvent{Type: "progress", PromptID: data.PromptID, Value: data.Value, Max: data.Max}, true
	case *wsExecuted:
		return ProgressEvent{
			Type:     "output",
			PromptID: data.PromptID,
			NodeID:   data.Node,
			Images:   data.Output.Images,
		}, true
	case *wsExecutionInterrupted:
		return ProgressEvent{Type: "interrupted", PromptID: data.PromptID, NodeID: data.Node}, true
	case *wsExecutionError:
		return ProgressEvent{
			Type:     "error",
			PromptID: data.PromptID,
			NodeID:   data.Node,
			Err: &ExecutionError{
				PromptID: data.PromptID,
				Kind:     data.ExceptionType,
				Message:  data.ExceptionMessage,
				NodeErrors: []string{
					fmt.Sprintf("node %s (%s): %s", data.Node, data.NodeType, data.ExceptionMessage),
				},
			},
		}, true
	}
	return ProgressEvent{}, false
}
