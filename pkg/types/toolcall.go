package types

import (
	"encoding/json"
	"sync"
	"time"
)

// ToolCallStatus is one state in a ToolCall's lifecycle, per spec.md §3.
type ToolCallStatus string

const (
	ToolCallPending    ToolCallStatus = "pending"
	ToolCallValidating ToolCallStatus = "validating"
	ToolCallExecuting  ToolCallStatus = "executing"
	ToolCallCompleted  ToolCallStatus = "completed"
	ToolCallFailed     ToolCallStatus = "failed"
	ToolCallCancelled  ToolCallStatus = "cancelled"
)

// ToolCall is a mutable record tracking one tool invocation through its
// lifecycle. Created by the Stream Parser when a tool-use block begins,
// mutated by the Agent Loop as it runs the call, and read by both the Agent Loop (to build the
// tool-result message) and the SSE Emitter (client-visible progress).
//
// This is the one consistent shape for tool-call state; the teacher's
// pkg/types.ToolPart.State (a bare string) and internal/session's ad hoc
// struct literal on the same field are both replaced by this type.
type ToolCall struct {
	mu sync.Mutex

	ID        string          `json:"id"`
	ToolName  string          `json:"toolName"`
	Params    json.RawMessage `json:"params"`
	Status    ToolCallStatus  `json:"status"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewToolCall creates a pending ToolCall for the given LLM-assigned id.
func NewToolCall(id, toolName string, params json.RawMessage) *ToolCall {
	return &ToolCall{ID: id, ToolName: toolName, Params: params, Status: ToolCallPending}
}

// SetStatus transitions the call's status under lock.
func (t *ToolCall) SetStatus(status ToolCallStatus) {
	t.mu.Lock()
	t.Status = status
	t.mu.Unlock()
}

// MarkStarted records the execution start time and moves to Executing.
func (t *ToolCall) MarkStarted() {
	now := time.Now()
	t.mu.Lock()
	t.StartedAt = &now
	t.Status = ToolCallExecuting
	t.mu.Unlock()
}

// MarkCompleted records a successful result.
func (t *ToolCall) MarkCompleted(result string) {
	now := time.Now()
	t.mu.Lock()
	t.EndedAt = &now
	t.Status = ToolCallCompleted
	t.Result = result
	t.mu.Unlock()
}

// MarkFailed records a failure.
func (t *ToolCall) MarkFailed(errMsg string) {
	now := time.Now()
	t.mu.Lock()
	t.EndedAt = &now
	t.Status = ToolCallFailed
	t.Error = errMsg
	t.mu.Unlock()
}

// MarkCancelled records cancellation.
func (t *ToolCall) MarkCancelled() {
	now := time.Now()
	t.mu.Lock()
	t.EndedAt = &now
	t.Status = ToolCallCancelled
	t.Error = "cancelled"
	t.mu.Unlock()
}

// Snapshot returns a value copy safe to serialize without holding the
// caller's own lock on the ToolCall.
func (t *ToolCall) Snapshot() ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ToolCall{
		ID:        t.ID,
		ToolName:  t.ToolName,
		Params:    t.Params,
		Status:    t.Status,
		StartedAt: t.StartedAt,
		EndedAt:   t.EndedAt,
		Result:    t.Result,
		Error:     t.Error,
	}
}

// Duration returns the elapsed execution time, zero if not yet started.
func (t *ToolCall) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.EndedAt != nil {
		end = *t.EndedAt
	}
	return end.Sub(*t.StartedAt)
}
