package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/prismrun/prism/internal/event"
	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/permission"
	"github.com/prismrun/prism/internal/perr"
	"github.com/prismrun/prism/internal/provider"
	"github.com/prismrun/prism/internal/scheduler"
	"github.com/prismrun/prism/internal/tool"
	"github.com/prismrun/prism/pkg/types"
)

const (
	// MaxSteps bounds a turn's agentic loop when the session has no
	// MaxTurns of its own (MaxTurns <= 0).
	MaxSteps = 50
	// MaxRetries is the number of retries a failed provider call gets
	// before the turn fails outright.
	MaxRetries = 3
	// RetryInitialInterval is the first backoff interval.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps the total time spent retrying one request.
	RetryMaxElapsedTime = 2 * time.Minute
	// MaxContextTokens is the token budget that triggers compaction.
	MaxContextTokens = 150000

	// defaultMaxOutputTokens is used when a model doesn't advertise one.
	defaultMaxOutputTokens = 8192
)

// newRetryBackoff builds an exponential backoff with jitter, bounded by
// MaxRetries and ctx, for provider-call retries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Loop is the Agent Loop: it drives one session's ReAct cycle — build
// request, stream completion, execute any requested tools, repeat — per
// spec.md §4.2. One Loop is shared by every session in the runtime; it
// holds no per-session state of its own.
type Loop struct {
	providers *provider.Registry
	tools     *tool.Registry
	scheduler *scheduler.Scheduler
	perms     *permission.Checker
	doomLoop  *permission.DoomLoopDetector

	defaultProviderID string
	defaultModelID    string
}

// NewLoop wires the Agent Loop's collaborators. perms and doomLoop may be
// nil to run with no permission gating (e.g. in tests).
func NewLoop(
	providers *provider.Registry,
	tools *tool.Registry,
	sched *scheduler.Scheduler,
	perms *permission.Checker,
	doomLoop *permission.DoomLoopDetector,
	defaultProviderID, defaultModelID string,
) *Loop {
	return &Loop{
		providers:         providers,
		tools:             tools,
		scheduler:         sched,
		perms:             perms,
		doomLoop:          doomLoop,
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
	}
}

// Run executes one user turn to completion: it appends userText to the
// session, then loops provider-call -> stream -> tool-execution until the
// model stops requesting tools, the session's turn budget is exhausted,
// or ctx is cancelled. The returned message is the final assistant
// message of the turn.
func (l *Loop) Run(ctx context.Context, sess *types.Session, bus *event.Bus, userText string) (*types.Message, error) {
	sess.SetState(types.StateThinking)
	defer sess.SetState(types.StateIdle)
	sess.Touch()

	publish(bus, types.Event{Kind: types.EventConnected, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ConnectedData{
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
	}})

	sess.AppendMessage(types.Message{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		Role:      types.RoleUser,
		Content:   types.TextContent(userText),
		Timestamp: time.Now(),
	})

	providerID, modelID := l.defaultProviderID, l.defaultModelID
	prov, err := l.providers.Get(providerID)
	if err != nil {
		return l.emitError(bus, sess, perr.Wrap(perr.Configuration, "resolving provider", err))
	}
	model, err := l.providers.GetModel(providerID, modelID)
	if err != nil {
		return l.emitError(bus, sess, perr.Wrap(perr.Configuration, "resolving model", err))
	}

	maxTurns := sess.MaxTurns
	if maxTurns <= 0 {
		maxTurns = MaxSteps
	}

	retry := newRetryBackoff(ctx)

	for {
		select {
		case <-ctx.Done():
			sess.SetState(types.StateIdle)
			return nil, perr.New(perr.Cancellation, "turn aborted")
		default:
		}

		if sess.Turn() >= maxTurns {
			return l.emitError(bus, sess, perr.New(perr.Validation, fmt.Sprintf("turn limit of %d steps reached", maxTurns)))
		}

		l.maybeCompact(ctx, sess)

		req, err := l.buildRequest(sess, model)
		if err != nil {
			return l.emitError(bus, sess, perr.Wrap(perr.Internal, "building completion request", err))
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			if wait, ok := l.shouldRetry(retry); ok {
				time.Sleep(wait)
				continue
			}
			return l.emitError(bus, sess, perr.Wrap(perr.Upstream, "creating completion", err))
		}

		sess.SetState(types.StateResponding)
		result, err := parseStream(ctx, stream, l.onStreamEvent(bus, sess))
		stream.Close()

		if err != nil {
			if ctx.Err() != nil {
				sess.SetState(types.StateIdle)
				return nil, perr.New(perr.Cancellation, "turn aborted")
			}
			if wait, ok := l.shouldRetry(retry); ok {
				time.Sleep(wait)
				continue
			}
			return l.emitError(bus, sess, perr.Wrap(perr.Upstream, "streaming completion", err))
		}
		retry.Reset()

		sess.AddTokens(result.inputTokens + result.outputTokens)

		asst := l.assistantMessage(sess, result)
		sess.AppendMessage(asst)

		if len(result.toolCalls) == 0 {
			publish(bus, types.Event{Kind: types.EventComplete, SessionID: sess.ID, Timestamp: time.Now(), Data: types.CompleteData{
				SessionID: sess.ID,
				Timestamp: time.Now().UnixMilli(),
				Message:   asst,
			}})
			return &asst, nil
		}

		sess.SetState(types.StateToolCalling)
		var resultParts []types.Part
		for _, tc := range result.toolCalls {
			toolMsg := l.runTool(ctx, sess, bus, tc)
			resultParts = append(resultParts, toolMsg.Content...)
		}
		sess.AppendMessage(types.Message{
			ID:        ulid.Make().String(),
			SessionID: sess.ID,
			Role:      types.RoleUser,
			Content:   resultParts,
			Timestamp: time.Now(),
		})

		sess.IncrementTurn()
	}
}

// shouldRetry advances retry and reports whether the caller should sleep
// and try again.
func (l *Loop) shouldRetry(retry backoff.BackOff) (time.Duration, bool) {
	next := retry.NextBackOff()
	if next == backoff.Stop {
		return 0, false
	}
	return next, true
}

// emitError publishes an `error` SSE event and returns it as a Go error.
func (l *Loop) emitError(bus *event.Bus, sess *types.Session, err error) (*types.Message, error) {
	sess.SetState(types.StateError)
	k := perr.KindOf(err)
	publish(bus, types.Event{Kind: types.EventError, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ErrorData{
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		Error: types.ErrorPayload{
			Code:      string(k),
			Message:   err.Error(),
			Timestamp: time.Now().UnixMilli(),
		},
	}})
	return nil, err
}

func (l *Loop) onStreamEvent(bus *event.Bus, sess *types.Session) func(StreamEvent) {
	return func(ev StreamEvent) {
		switch e := ev.(type) {
		case TextDeltaEvent:
			publish(bus, types.Event{Kind: types.EventResponse, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ResponseData{
				SessionID: sess.ID,
				Timestamp: time.Now().UnixMilli(),
				Content:   e.Text,
			}})
		case ReasoningDeltaEvent:
			publish(bus, types.Event{Kind: types.EventThinking, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ThinkingData{
				SessionID: sess.ID,
				Timestamp: time.Now().UnixMilli(),
				Content:   e.Text,
			}})
		}
	}
}

// assistantMessage builds the assistant's Message for this step from the
// parsed stream result: its text content plus one PartToolUse per
// requested tool call.
func (l *Loop) assistantMessage(sess *types.Session, result *streamResult) types.Message {
	var content []types.Part
	if result.text != "" {
		content = append(content, types.TextContent(result.text)...)
	}
	for _, tc := range result.toolCalls {
		content = append(content, types.Part{
			Kind:      types.PartToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.ToolName,
			Input:     tc.Params,
		})
	}

	return types.Message{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		Role:      types.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Metadata: &types.MessageMetadata{
			ProviderID:   l.defaultProviderID,
			ModelID:      l.defaultModelID,
			InputTokens:  result.inputTokens,
			OutputTokens: result.outputTokens,
		},
	}
}

// runTool executes one tool call end to end — permission check, doom-loop
// check, scheduled execution — publishing tool_start/tool_progress/
// tool_complete events as it goes, and returns a message holding the
// call's tool-result part; Run folds the parts of every call in a step
// into one user message.
func (l *Loop) runTool(ctx context.Context, sess *types.Session, bus *event.Bus, tc *types.ToolCall) types.Message {
	if err := l.checkPermission(ctx, sess, tc); err != nil {
		tc.MarkFailed(err.Error())
		l.publishToolComplete(bus, sess, tc)
		return l.toolResultMessage(sess, tc)
	}

	if l.doomLoop != nil && l.doomLoop.Check(sess.ID, tc.ToolName, tc.Params) {
		if err := l.confirmDoomLoop(ctx, sess, tc); err != nil {
			tc.MarkFailed(err.Error())
			l.publishToolComplete(bus, sess, tc)
			return l.toolResultMessage(sess, tc)
		}
		l.doomLoop.Reset(sess.ID)
	}

	tc.MarkStarted()
	l.publishToolStart(bus, sess, tc)

	result, err := l.scheduler.Schedule(ctx, tc.ToolName, tc.Params, scheduler.Options{
		Cancel: ctx.Done(),
		OnProgress: func(progress float64, message string) {
			l.publishToolProgress(bus, sess, tc, progress)
		},
	})
	if err != nil {
		tc.MarkFailed(err.Error())
	} else {
		tc.MarkCompleted(result.Output)
	}

	l.publishToolComplete(bus, sess, tc)
	return l.toolResultMessage(sess, tc)
}

func (l *Loop) toolResultMessage(sess *types.Session, tc *types.ToolCall) types.Message {
	snap := tc.Snapshot()
	part := types.Part{
		Kind:      types.PartToolResult,
		ToolUseID: snap.ID,
		ToolName:  snap.ToolName,
	}
	if snap.Status == types.ToolCallFailed || snap.Status == types.ToolCallCancelled {
		part.Result = snap.Error
		part.IsError = true
	} else {
		part.Result = snap.Result
	}

	return types.Message{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		Role:      types.RoleUser,
		Content:   []types.Part{part},
		Timestamp: time.Now(),
	}
}

// checkPermission gates a tool call against the session's profile.
// RequiresConfirmation carries two shapes of key: plain tool names
// ("edit", "write", "webfetch") and, for bash, "bash:<pattern>" entries
// per agent.Agent.ToProfile — a bash call needs confirmation when any
// "bash:<pattern>" entry set to true matches it, either as a glob over the
// whole command string or via permission.MatchPattern against one of its
// parsed commands, falling back to the plain "bash" key.
// A tool named by neither shape runs unchecked.
func (l *Loop) checkPermission(ctx context.Context, sess *types.Session, tc *types.ToolCall) error {
	profile := sess.Profile
	if profile == nil || l.perms == nil {
		return nil
	}

	pattern, needsConfirm := l.confirmationKey(profile, tc)
	if !needsConfirm {
		return nil
	}

	action := profile.DefaultPermission
	if action == "" {
		action = types.PermissionAsk
	}

	req := permission.Request{
		Type:      permission.PermissionType(tc.ToolName),
		SessionID: sess.ID,
		CallID:    tc.ID,
		Title:     fmt.Sprintf("Allow %s?", tc.ToolName),
	}
	if pattern != "" {
		req.Pattern = []string{pattern}
	}
	return l.perms.Check(ctx, req, action)
}

// confirmationKey decides whether tc requires confirmation under profile,
// returning the matched bash command pattern (if any) for the permission
// request's audit trail.
func (l *Loop) confirmationKey(profile *types.AgentProfile, tc *types.ToolCall) (pattern string, needsConfirm bool) {
	if tc.ToolName == "bash" {
		var args struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(tc.Params, &args)
		cmds, _ := permission.ParseBashCommand(args.Command)
		for key, required := range profile.RequiresConfirmation {
			p, ok := strings.CutPrefix(key, "bash:")
			if !required || !ok {
				continue
			}
			if matchesAnyPattern([]string{p}, args.Command) {
				return p, true
			}
			for _, c := range cmds {
				if permission.MatchPattern(p, c) {
					return p, true
				}
			}
		}
		return "", profile.RequiresConfirmation["bash"]
	}
	return "", profile.RequiresConfirmation[tc.ToolName]
}

// confirmDoomLoop asks the user to confirm a tool call the DoomLoopDetector
// flagged as repeating with identical input.
func (l *Loop) confirmDoomLoop(ctx context.Context, sess *types.Session, tc *types.ToolCall) error {
	if l.perms == nil {
		return fmt.Errorf("doom loop detected: %s called repeatedly with identical input", tc.ToolName)
	}
	req := permission.Request{
		Type:      permission.PermDoomLoop,
		SessionID: sess.ID,
		CallID:    tc.ID,
		Title:     fmt.Sprintf("%s has been called repeatedly with identical input — continue?", tc.ToolName),
	}
	return l.perms.Ask(ctx, req)
}

func (l *Loop) publishToolStart(bus *event.Bus, sess *types.Session, tc *types.ToolCall) {
	publish(bus, types.Event{Kind: types.EventToolStart, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ToolStartData{
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		ToolCall:  toolCallView(tc),
	}})
}

func (l *Loop) publishToolProgress(bus *event.Bus, sess *types.Session, tc *types.ToolCall, progress float64) {
	publish(bus, types.Event{Kind: types.EventToolProgress, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ToolProgressData{
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		ToolCall:  toolCallView(tc),
		Progress:  progress,
	}})
}

func (l *Loop) publishToolComplete(bus *event.Bus, sess *types.Session, tc *types.ToolCall) {
	publish(bus, types.Event{Kind: types.EventToolComplete, SessionID: sess.ID, Timestamp: time.Now(), Data: types.ToolCompleteData{
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		ToolCall:  toolCallView(tc),
	}})
	logging.Debug().Str("session", sess.ID).Str("tool", tc.ToolName).Str("status", string(tc.Snapshot().Status)).Msg("tool call finished")
}

func toolCallView(tc *types.ToolCall) types.ToolCallView {
	snap := tc.Snapshot()
	view := types.ToolCallView{ID: snap.ID, Tool: snap.ToolName, Status: snap.Status}
	var params map[string]any
	if json.Unmarshal(snap.Params, &params) == nil {
		view.Params = params
	}
	if snap.Result != "" {
		view.Result = &snap.Result
	}
	if snap.Error != "" {
		view.Error = &snap.Error
	}
	return view
}

// buildRequest assembles the provider completion request for the current
// turn: system prompt, converted history, and the tool set the session's
// profile allows.
func (l *Loop) buildRequest(sess *types.Session, model *types.Model) (*provider.CompletionRequest, error) {
	prompt := NewSystemPrompt(sess, sess.Profile, l.defaultProviderID, l.defaultModelID)

	messages := sess.Messages()
	einoMessages := make([]*schema.Message, 0, len(messages)+1)
	einoMessages = append(einoMessages, &schema.Message{Role: schema.System, Content: prompt.Build()})
	einoMessages = append(einoMessages, provider.ConvertToEinoMessages(messages)...)

	tools, err := l.resolveTools(sess.Profile, model)
	if err != nil {
		return nil, err
	}

	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	return &provider.CompletionRequest{
		Model:     model.ID,
		Messages:  einoMessages,
		Tools:     tools,
		MaxTokens: maxTokens,
	}, nil
}

// resolveTools returns the Eino tool definitions for every registered
// tool whose ID matches one of profile's ToolPatterns.
func (l *Loop) resolveTools(profile *types.AgentProfile, model *types.Model) ([]*schema.ToolInfo, error) {
	if !model.SupportsTools {
		return nil, nil
	}

	infos, err := l.tools.ToolInfos()
	if err != nil {
		return nil, err
	}
	if profile == nil || len(profile.ToolPatterns) == 0 {
		return infos, nil
	}

	filtered := infos[:0:0]
	for _, info := range infos {
		if matchesAnyPattern(profile.ToolPatterns, info.Name) {
			filtered = append(filtered, info)
		}
	}
	return filtered, nil
}

func matchesAnyPattern(patterns []string, toolID string) bool {
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		if strings.Contains(pattern, "*") {
			if ok, _ := doublestar.Match(pattern, toolID); ok {
				return true
			}
			continue
		}
		if pattern == toolID {
			return true
		}
	}
	return false
}

func publish(bus *event.Bus, ev types.Event) {
	if bus == nil {
		return
	}
	bus.PublishSync(ev)
}
