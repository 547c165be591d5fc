package types

import "time"

// EventKind is one of the 8 SSE event kinds, per spec.md §3/§6.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventThinking     EventKind = "thinking"
	EventToolStart    EventKind = "tool_start"
	EventToolProgress EventKind = "tool_progress"
	EventToolComplete EventKind = "tool_complete"
	EventResponse     EventKind = "response"
	EventComplete     EventKind = "complete"
	EventError        EventKind = "error"
)

// Event is the discriminated union emitted on a session's SSE stream.
// Every event carries the session id and a server timestamp; Data is one
// of the kind-specific payload types below.
type Event struct {
	Kind      EventKind `json:"type"`
	SessionID string    `json:"-"`
	Timestamp time.Time `json:"-"`
	Data      any       `json:"data"`
}

// ThinkingData is the payload of a `thinking` event.
type ThinkingData struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// ResponseData is the payload of a `response` event (an incremental text
// fragment).
type ResponseData struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// ConnectedData is the payload of the `connected` event.
type ConnectedData struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// ToolCallView is the wire-safe view of a ToolCall embedded in
// tool_start/tool_progress/tool_complete events.
type ToolCallView struct {
	ID     string         `json:"id"`
	Tool   string          `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
	Status ToolCallStatus `json:"status"`
	Result *string        `json:"result,omitempty"`
	Error  *string        `json:"error,omitempty"`
}

// ToolStartData is the payload of a `tool_start` event.
type ToolStartData struct {
	SessionID string       `json:"sessionId"`
	Timestamp int64        `json:"timestamp"`
	ToolCall  ToolCallView `json:"toolCall"`
}

// ToolProgressData is the payload of a `tool_progress` event.
type ToolProgressData struct {
	SessionID string       `json:"sessionId"`
	Timestamp int64        `json:"timestamp"`
	ToolCall  ToolCallView `json:"toolCall"`
	Progress  float64      `json:"progress"`
}

// ToolCompleteData is the payload of a `tool_complete` event.
type ToolCompleteData struct {
	SessionID string       `json:"sessionId"`
	Timestamp int64        `json:"timestamp"`
	ToolCall  ToolCallView `json:"toolCall"`
}

// CompleteData is the payload of the `complete` event.
type CompleteData struct {
	SessionID string  `json:"sessionId"`
	Timestamp int64   `json:"timestamp"`
	Message   Message `json:"message"`
}

// ErrorPayload is the `error` field of an ErrorData, with the stable code
// drawn from the perr.Kind taxonomy.
type ErrorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorData is the payload of the `error` event.
type ErrorData struct {
	SessionID string       `json:"sessionId"`
	Timestamp int64        `json:"timestamp"`
	Error     ErrorPayload `json:"error"`
}
