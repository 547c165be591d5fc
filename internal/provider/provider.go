// Package provider wraps the LLM provider backends the Agent Loop talks
// to behind a single Eino-flavored interface, per SPEC_FULL.md §6.
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/prismrun/prism/pkg/types"
)

// Provider represents an LLM provider backed by an Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier, e.g. "anthropic".
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion creates a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
	StopWords   []string           `json:"stopWords,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo is a tool definition in the shape the scheduler's Registry
// hands to a provider, ahead of conversion to Eino's own ToolInfo.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ConvertToEinoTools converts scheduler-facing tool definitions to the
// Eino format a ChatModel's WithTools expects.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}

		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

// parseJSONSchemaToParams converts a flat JSON Schema object into Eino's
// ParameterInfo map. Nested schemas (arrays of objects, for instance)
// aren't expanded further; Eino only needs enough shape to validate a
// top-level tool call.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}

// ConvertFromEinoMessage converts an Eino message chunk to the internal
// message shape the Stream Parser assembles deltas onto.
func ConvertFromEinoMessage(msg *schema.Message, sessionID string) *types.Message {
	role := types.RoleAssistant
	if msg.Role == schema.User {
		role = types.RoleUser
	}

	return &types.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   types.TextContent(msg.Content),
		Timestamp: time.Now(),
	}
}

// ConvertToEinoMessages converts a session's message log into the Eino
// message slice a ChatModel's Stream call consumes. A PartToolResult part
// becomes its own schema.Tool-role message, per Anthropic/OpenAI's wire
// convention of carrying tool results as sibling messages rather than as
// content nested inside the assistant turn that requested them.
func ConvertToEinoMessages(messages []types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		role := schema.Assistant
		if msg.Role == types.RoleUser {
			role = schema.User
		}

		var content strings.Builder
		var toolCalls []schema.ToolCall
		var toolResults []*schema.Message

		for _, p := range msg.Content {
			switch p.Kind {
			case types.PartText:
				content.WriteString(p.Text)
			case types.PartToolUse:
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: p.ToolUseID,
					Function: schema.FunctionCall{
						Name:      p.ToolName,
						Arguments: string(p.Input),
					},
				})
			case types.PartToolResult:
				toolResults = append(toolResults, &schema.Message{
					Role:       schema.Tool,
					Content:    p.Result,
					ToolCallID: p.ToolUseID,
				})
			}
		}

		if content.Len() > 0 || len(toolCalls) > 0 {
			result = append(result, &schema.Message{
				Role:      role,
				Content:   content.String(),
				ToolCalls: toolCalls,
			})
		}
		result = append(result, toolResults...)
	}

	return result
}
