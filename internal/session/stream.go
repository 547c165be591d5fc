package session

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/prismrun/prism/internal/provider"
	"github.com/prismrun/prism/pkg/types"
)

// StreamEvent is one event the Stream Parser emits while draining a
// provider's completion stream. Unlike the teacher's processMessageChunk,
// this parser trusts every provider chunk to carry only the new
// increment of text — the teacher's accumulated-vs-delta heuristic
// (checking whether a chunk's content started with everything seen so
// far) existed to paper over backends that didn't follow Eino's
// streaming contract; it is not carried forward here.
type StreamEvent interface {
	streamEvent()
}

// TextStartEvent marks the first text chunk of a turn.
type TextStartEvent struct{}

func (TextStartEvent) streamEvent() {}

// TextDeltaEvent carries one incremental fragment of assistant text.
type TextDeltaEvent struct{ Text string }

func (TextDeltaEvent) streamEvent() {}

// TextEndEvent marks the end of the assistant's text content.
type TextEndEvent struct{}

func (TextEndEvent) streamEvent() {}

// ReasoningDeltaEvent carries one incremental fragment of extended
// thinking content, surfaced on the wire as a `thinking` SSE event.
type ReasoningDeltaEvent struct{ Text string }

func (ReasoningDeltaEvent) streamEvent() {}

// ToolCallStartEvent marks the first chunk that named a tool call.
type ToolCallStartEvent struct {
	ID   string
	Name string
}

func (ToolCallStartEvent) streamEvent() {}

// ToolCallDeltaEvent carries one incremental fragment of a tool call's
// JSON arguments.
type ToolCallDeltaEvent struct {
	ID    string
	Delta string
}

func (ToolCallDeltaEvent) streamEvent() {}

// ToolCallEndEvent marks a tool call's arguments as complete. Input is the
// parsed arguments, or {} when they were empty or not valid JSON.
type ToolCallEndEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolCallEndEvent) streamEvent() {}

// FinishEvent marks the end of the stream.
type FinishEvent struct {
	Reason string
	Error  error
}

func (FinishEvent) streamEvent() {}

// pendingCall accumulates one tool call's arguments across chunks. Eino
// streams arguments as fragments keyed by Index (preferred) or, lacking
// that, by the call's ID.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// streamResult is what parseStream hands back once the provider's stream
// is drained: the full assistant text, the token usage it reported, and
// every tool call it requested, in the order they first appeared.
type streamResult struct {
	text         string
	reasoning    string
	toolCalls    []*types.ToolCall
	finishReason string
	inputTokens  int
	outputTokens int
}

// parseStream drains stream to completion, invoking onEvent for every
// StreamEvent as it's produced, and returns the accumulated result.
func parseStream(ctx context.Context, stream *provider.CompletionStream, onEvent func(StreamEvent)) (*streamResult, error) {
	byIndex := make(map[int]*pendingCall)
	byID := make(map[string]*pendingCall)
	var order []*pendingCall

	result := &streamResult{}
	var textStarted bool

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}

		if msg.Content != "" {
			if !textStarted {
				onEvent(TextStartEvent{})
				textStarted = true
			}
			result.text += msg.Content
			onEvent(TextDeltaEvent{Text: msg.Content})
		}

		if msg.ReasoningContent != "" {
			result.reasoning += msg.ReasoningContent
			onEvent(ReasoningDeltaEvent{Text: msg.ReasoningContent})
		}

		for _, tc := range msg.ToolCalls {
			call := lookupOrCreate(tc, byIndex, byID, &order)
			if call == nil {
				continue
			}
			if tc.ID != "" && tc.Function.Name != "" && call.name == "" {
				call.id = tc.ID
				call.name = tc.Function.Name
				onEvent(ToolCallStartEvent{ID: call.id, Name: call.name})
			}
			if tc.Function.Arguments != "" {
				call.args.WriteString(tc.Function.Arguments)
				onEvent(ToolCallDeltaEvent{ID: call.id, Delta: tc.Function.Arguments})
			}
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.Usage != nil {
				result.inputTokens = msg.ResponseMeta.Usage.PromptTokens
				result.outputTokens = msg.ResponseMeta.Usage.CompletionTokens
			}
			if msg.ResponseMeta.FinishReason != "" {
				result.finishReason = msg.ResponseMeta.FinishReason
			}
		}
	}

	if textStarted {
		onEvent(TextEndEvent{})
	}

	for _, call := range order {
		params := json.RawMessage(call.args.String())
		if len(params) == 0 || !json.Valid(params) {
			params = json.RawMessage("{}")
		}
		tc := types.NewToolCall(call.id, call.name, params)
		result.toolCalls = append(result.toolCalls, tc)
		onEvent(ToolCallEndEvent{ID: tc.ID, Name: tc.ToolName, Input: params})
	}

	if result.finishReason == "" {
		if len(result.toolCalls) > 0 {
			result.finishReason = "tool-calls"
		} else {
			result.finishReason = "stop"
		}
	}
	if result.finishReason == "tool_use" {
		result.finishReason = "tool-calls"
	}

	onEvent(FinishEvent{Reason: result.finishReason})
	return result, nil
}

func lookupOrCreate(tc schema.ToolCall, byIndex map[int]*pendingCall, byID map[string]*pendingCall, order *[]*pendingCall) *pendingCall {
	if tc.Index != nil {
		if call, ok := byIndex[*tc.Index]; ok {
			return call
		}
		call := &pendingCall{}
		byIndex[*tc.Index] = call
		*order = append(*order, call)
		return call
	}
	if tc.ID != "" {
		if call, ok := byID[tc.ID]; ok {
			return call
		}
		call := &pendingCall{}
		byID[tc.ID] = call
		*order = append(*order, call)
		return call
	}
	return nil
}
