package comfy

import "encoding/json"

// wsMessage is one envelope off the engine's websocket. Data is decoded into
// the message-specific struct based on Type.
type wsMessage struct {
	Type string
	Data interface{}
}

func (m *wsMessage) UnmarshalJSON(b []byte) error {
	var temp struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}
	m.Type = temp.Type

	switch m.Type {
	case "status":
		m.Data = &wsStatus{}
	case "execution_start":
		m.Data = &wsExecutionStart{}
	case "executing":
		m.Data = &wsExecuting{}
	case "progress":
		m.Data = &wsProgress{}
	case "executed":
		m.Data = &wsExecuted{}
	case "execution_interrupted":
		m.Data = &wsExecutionInterrupted{}
	case "execution_error":
		m.Data = &wsExecutionError{}
	default:
		// unknown message types are dropped by the listener
		m.Data = nil
	}

	if m.Data != nil && len(temp.Data) > 0 {
		return json.Unmarshal(temp.Data, m.Data)
	}
	return nil
}

// {"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}
type wsStatus struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

// {"type": "execution_start", "data": {"prompt_id": "..."}}
type wsExecutionStart struct {
	PromptID string `json:"prompt_id"`
}

// {"type": "executing", "data": {"node": "12", "prompt_id": "..."}}
// A null node means the final node finished.
type wsExecuting struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// {"type": "progress", "data": {"value": 1, "max": 20}}
type wsProgress struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
}

// {"type": "executed", "data": {"node": "19", "output": {"images": [...]}, "prompt_id": "..."}}
type wsExecuted struct {
	Node     string `json:"node"`
	PromptID string `json:"prompt_id"`
	Output   struct {
		Images []ImageRef `json:"images"`
	} `json:"output"`
}

type wsExecutionInterrupted struct {
	PromptID string   `json:"prompt_id"`
	Node     string   `json:"node_id"`
	NodeType string   `json:"node_type"`
	Executed []string `json:"executed"`
}

type wsExecutionError struct {
	PromptID         string   `json:"prompt_id"`
	Node             string   `json:"node_id"`
	NodeType         string   `json:"node_type"`
	ExceptionMessage string   `json:"exception_message"`
	ExceptionType    string   `json:"exception_type"`
	Traceback        []string `json:"traceback"`
}
