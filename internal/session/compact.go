package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/provider"
	"github.com/prismrun/prism/pkg/types"
)

// CompactionConfig controls when and how the Agent Loop compacts a
// session's message log, per spec.md §4.5.
type CompactionConfig struct {
	// MinMessagesToKeep is the number of most recent messages kept verbatim.
	MinMessagesToKeep int

	// SummaryMaxTokens bounds the LLM-generated summary's length.
	SummaryMaxTokens int

	// ContextThreshold is the fraction of MaxContextTokens that triggers
	// compaction.
	ContextThreshold float64
}

// DefaultCompactionConfig is the compaction policy every Loop uses.
var DefaultCompactionConfig = CompactionConfig{
	MinMessagesToKeep: 4,
	SummaryMaxTokens:  2000,
	ContextThreshold:  0.75,
}

// compactionSystemPrompt instructs the summarization call.
const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// maybeCompact summarizes the oldest messages via an auxiliary LLM call
// once the session's estimated token usage crosses
// CompactionConfig.ContextThreshold of MaxContextTokens, keeping
// MinMessagesToKeep most recent messages verbatim. Errors are logged and
// swallowed — a failed compaction attempt shouldn't fail the turn; the
// loop just keeps the full (uncompacted) history for one more step.
func (l *Loop) maybeCompact(ctx context.Context, sess *types.Session) {
	messages := sess.Messages()
	if len(messages) <= DefaultCompactionConfig.MinMessagesToKeep {
		return
	}
	threshold := int(float64(MaxContextTokens) * DefaultCompactionConfig.ContextThreshold)
	if estimateMessagesTokens(messages) < threshold {
		return
	}

	keepFrom := len(messages) - DefaultCompactionConfig.MinMessagesToKeep
	toCompact := messages[:keepFrom]
	keep := messages[keepFrom:]

	summary, err := l.summarize(ctx, toCompact)
	if err != nil {
		logging.Warn().Err(err).Str("session", sess.ID).Msg("compaction failed")
		return
	}

	sess.CompactMessages(types.Message{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		Role:      types.RoleAssistant,
		Content:   types.TextContent(summary),
		Timestamp: time.Now(),
	}, keep)
}

// summarize asks the registry's default model to summarize a run of
// messages, returning the full response text.
func (l *Loop) summarize(ctx context.Context, messages []types.Message) (string, error) {
	model, err := l.providers.DefaultModel()
	if err != nil {
		return "", err
	}
	prov, err := l.providers.Get(model.ProviderID)
	if err != nil {
		return "", err
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: buildSummaryPrompt(messages)},
		},
		MaxTokens: DefaultCompactionConfig.SummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		text.WriteString(msg.Content)
	}

	return text.String(), nil
}

// buildSummaryPrompt renders a message run as plain text for the
// summarization call, truncating long tool results.
func buildSummaryPrompt(messages []types.Message) string {
	var b strings.Builder
	b.WriteString("Please summarize the following conversation, focusing on:\n")
	b.WriteString("1. Key decisions and outcomes\n")
	b.WriteString("2. Files that were modified\n")
	b.WriteString("3. Important context for continuing the work\n\n---\n\n")

	for _, msg := range messages {
		if msg.Role == types.RoleUser {
			b.WriteString("USER:\n")
		} else {
			b.WriteString("ASSISTANT:\n")
		}
		for _, part := range msg.Content {
			switch part.Kind {
			case types.PartText:
				b.WriteString(part.Text)
				b.WriteString("\n")
			case types.PartToolUse:
				fmt.Fprintf(&b, "[Tool: %s]\n", part.ToolName)
			case types.PartToolResult:
				result := part.Result
				if len(result) > 500 {
					result = result[:500] + "..."
				}
				b.WriteString(result)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// estimateMessagesTokens is the ~4-characters-per-token heuristic applied
// to a message run, used only to decide when to compact.
func estimateMessagesTokens(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokens(msg.Text())
		for _, part := range msg.Content {
			if part.Kind == types.PartToolResult {
				total += estimateTokens(part.Result)
			}
		}
	}
	return total
}

// estimateTokens is a rough ~4-characters-per-token heuristic.
func estimateTokens(text string) int {
	return len(text) / 4
}
