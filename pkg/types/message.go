// Package types holds the data model shared across the runtime: the
// conversation log (Message, Part), tool invocation records (ToolCall),
// session state (Session), the SSE wire event (Event), and the config
// fragments (ProviderConfig, AgentProfile, ToolConfig) threaded through
// from internal/config into the session and scheduler layers.
//
// The teacher repo (internal/session, internal/tool, pkg/types) carried
// two inconsistent shapes for tool state (a bare string vs. a struct with
// sub-fields) and two field names for the same diff path. This package
// picks one consistent shape for each, per spec.md's Design Notes §9.
package types

import (
	"encoding/json"
	"time"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind tags the kind of a content Part. A plain-string message body
// is just the single-element, Kind=PartText case of this sum.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolUse    PartKind = "tool-use"
	PartToolResult PartKind = "tool-result"
)

// Part is one element of a Message's content. Only the fields relevant
// to its Kind are populated.
type Part struct {
	Kind PartKind `json:"kind"`

	// Kind == PartText
	Text string `json:"text,omitempty"`

	// Kind == PartToolUse: ToolUseID is assigned by the LLM and must be
	// echoed back unchanged by the matching PartToolResult.
	ToolUseID string          `json:"toolUseId,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// Kind == PartToolResult
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`
}

// TextContent builds the single-element text-only content form.
func TextContent(text string) []Part {
	return []Part{{Kind: PartText, Text: text}}
}

// MessageMetadata carries the optional per-message metadata spec.md §3
// names: model id and token counts.
type MessageMetadata struct {
	ModelID      string `json:"modelId,omitempty"`
	ProviderID   string `json:"providerId,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Message is a single entry in a Session's conversation log.
type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	Role      Role             `json:"role"`
	Content   []Part           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Text concatenates every PartText element of Content; the shortcut a
// caller uses when it doesn't care about tool parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolUseParts returns the ordered tool-use parts of this message.
func (m Message) ToolUseParts() []Part {
	var out []Part
	for _, p := range m.Content {
		if p.Kind == PartToolUse {
			out = append(out, p)
		}
	}
	return out
}
