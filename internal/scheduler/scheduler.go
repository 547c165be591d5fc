// Package scheduler implements the Tool Scheduler: middleware between the
// Agent Loop and the concrete tool implementations registered in
// internal/tool.Registry. It enforces the six-step execution policy spec.md
// §4.3 requires for every call — lookup, enabled check, rate limit,
// parameter validation, timed execution, bookkeeping — so no tool
// implementation has to reimplement any of it.
package scheduler

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/cloudwego/eino/schema"

	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/perr"
	"github.com/prismrun/prism/internal/tool"
	"github.com/prismrun/prism/pkg/types"
)

// rateLimitWindow is the sliding window spec.md §4.3 step 3 measures
// invocation timestamps over.
const rateLimitWindow = 60 * time.Second

// defaultTimeout is used when neither the call nor the tool's config
// overrides it.
const defaultTimeout = 120 * time.Second

// defaultRateLimit is the per-tool budget when config leaves it at zero.
const defaultRateLimit = 60

// Options carries the per-call knobs spec.md §4.3's Schedule signature
// names: a cancellation handle and an optional per-call timeout override.
type Options struct {
	Cancel  <-chan struct{}
	Timeout time.Duration // 0 = no override, fall through to tool/global default

	// OnProgress, if set, is forwarded to the tool as its progress
	// callback (used to emit tool_progress events).
	OnProgress func(progress float64, message string)
}

// Result is what Schedule returns on success.
type Result struct {
	Output   string
	Metadata map[string]any
	Duration time.Duration
}

// stats is the per-tool bookkeeping state spec.md §4.3 step 6 updates.
type stats struct {
	mu            sync.Mutex
	totalCalls    int
	failedCalls   int
	meanDuration  time.Duration
	invocations   *list.List // sliding window of time.Time, oldest at Front
}

func newStats() *stats {
	return &stats{invocations: list.New()}
}

// recordInvocation appends now and evicts anything older than the window,
// returning the window's length after the append.
func (s *stats) recordInvocation(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations.PushBack(now)
	cutoff := now.Add(-rateLimitWindow)
	for e := s.invocations.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			s.invocations.Remove(e)
		}
		e = next
	}
	return s.invocations.Len()
}

// windowLen reports the current sliding-window occupancy without recording
// a new invocation, used by the rate-limit check before it decides whether
// to append.
func (s *stats) windowLen(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-rateLimitWindow)
	for e := s.invocations.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			s.invocations.Remove(e)
		}
		e = next
	}
	return s.invocations.Len()
}

func (s *stats) record(d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCalls++
	if failed {
		s.failedCalls++
	}
	// Cumulative-average formula: mean_n = mean_{n-1} + (x_n - mean_{n-1}) / n.
	s.meanDuration += (d - s.meanDuration) / time.Duration(s.totalCalls)
}

// Snapshot is the read-only view of a tool's statistics.
type Snapshot struct {
	ToolName     string        `json:"toolName"`
	TotalCalls   int           `json:"totalCalls"`
	FailedCalls  int           `json:"failedCalls"`
	MeanDuration time.Duration `json:"meanDuration"`
}

func (s *stats) snapshot(name string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{ToolName: name, TotalCalls: s.totalCalls, FailedCalls: s.failedCalls, MeanDuration: s.meanDuration}
}

// Scheduler is the Tool Scheduler. One instance is shared process-wide; it
// holds no per-session state beyond the tools' own statistics.
type Scheduler struct {
	registry *tool.Registry
	config   map[string]types.ToolConfig

	mu    sync.Mutex
	stats map[string]*stats
}

// New creates a Scheduler over registry, policed by the per-tool config
// loaded from types.Config.Tools.
func New(registry *tool.Registry, config map[string]types.ToolConfig) *Scheduler {
	return &Scheduler{
		registry: registry,
		config:   config,
		stats:    make(map[string]*stats),
	}
}

func (s *Scheduler) statsFor(name string) *stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		st = newStats()
		s.stats[name] = st
	}
	return st
}

// Schedule runs one tool call through the full six-step pipeline.
func (s *Scheduler) Schedule(ctx context.Context, toolName string, params json.RawMessage, opts Options) (*Result, error) {
	st := s.statsFor(toolName)

	// 1. Lookup.
	t, ok := s.registry.Get(toolName)
	if !ok {
		st.mu.Lock()
		st.totalCalls++
		st.mu.Unlock()
		return nil, s.unknownToolError(toolName)
	}

	// 2. Enabled check.
	cfg := s.config[toolName]
	if cfgExists(s.config, toolName) && !cfg.Enabled {
		st.record(0, true)
		return nil, perr.New(perr.Validation, fmt.Sprintf("tool %q is disabled", toolName))
	}

	// 3. Rate limit.
	budget := cfg.RateLimitPerMinute
	if budget == 0 {
		budget = defaultRateLimit
	}
	now := time.Now()
	if st.windowLen(now) >= budget {
		st.record(0, true)
		return nil, perr.New(perr.RateLimit, fmt.Sprintf("tool %q exceeded %d calls/minute", toolName, budget)).
			WithDetails(map[string]any{"budget": budget})
	}
	st.recordInvocation(now)

	// 4. Parameter validation.
	if err := validateParams(t, params); err != nil {
		st.record(0, true)
		return nil, perr.Wrap(perr.Validation, fmt.Sprintf("invalid parameters for %q", toolName), err)
	}

	// 5. Execution, raced against the effective timeout.
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	abortCh := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			close(abortCh)
		case <-opts.Cancel:
			cancel()
		}
	}()

	toolCtx := &tool.Context{
		AbortCh: abortCh,
		OnMetadata: func(title string, meta map[string]any) {
			if opts.OnProgress != nil {
				opts.OnProgress(0, title)
			}
		},
	}

	start := time.Now()
	resultCh := make(chan toolOutcome, 1)
	go func() {
		res, err := t.Execute(execCtx, params, toolCtx)
		resultCh <- toolOutcome{res, err}
	}()

	var outcome toolOutcome
	select {
	case outcome = <-resultCh:
	case <-execCtx.Done():
		elapsed := time.Since(start)
		st.record(elapsed, true)
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, perr.New(perr.Timeout, fmt.Sprintf("tool %q exceeded %s", toolName, timeout))
		}
		return nil, perr.New(perr.Cancellation, fmt.Sprintf("tool %q cancelled", toolName))
	}

	elapsed := time.Since(start)

	// 6. Bookkeeping.
	if outcome.err != nil {
		st.record(elapsed, true)
		logging.Warn().Err(outcome.err).Str("tool", toolName).Dur("elapsed", elapsed).Msg("tool execution failed")
		return nil, perr.Wrap(perr.Upstream, fmt.Sprintf("tool %q failed", toolName), outcome.err)
	}
	st.record(elapsed, false)

	return &Result{
		Output:   outcome.result.Output,
		Metadata: outcome.result.Metadata,
		Duration: elapsed,
	}, nil
}

type toolOutcome struct {
	result *tool.Result
	err    error
}

func cfgExists(cfgs map[string]types.ToolConfig, name string) bool {
	_, ok := cfgs[name]
	return ok
}

// unknownToolError suggests the closest registered name by Levenshtein
// distance, per spec.md §4.3 step 1.
func (s *Scheduler) unknownToolError(name string) error {
	best := ""
	bestDist := -1
	for _, id := range s.registry.IDs() {
		d := levenshtein.ComputeDistance(name, id)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = id
		}
	}
	msg := fmt.Sprintf("unknown tool %q", name)
	details := map[string]any{}
	if best != "" && bestDist <= 3 {
		msg = fmt.Sprintf("unknown tool %q, did you mean %q?", name, best)
		details["suggestion"] = best
	}
	return perr.New(perr.Validation, msg).WithDetails(details)
}

// validateParams checks the params blob against the tool's declared JSON
// schema at the level the scheduler can enforce without a full schema
// validator dependency: it's well-formed JSON, and every required
// property is present.
func validateParams(t tool.Tool, params json.RawMessage) error {
	var decoded map[string]any
	if len(params) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("params must be a JSON object: %w", err)
	}

	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.Parameters(), &schema); err != nil {
		return nil // tool declared no enforceable schema
	}
	for _, req := range schema.Required {
		if _, ok := decoded[req]; !ok {
			return fmt.Errorf("missing required parameter %q", req)
		}
	}
	return nil
}

// Stats returns a snapshot of every tool that has received at least one
// call.
func (s *Scheduler) Stats() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.stats))
	for name, st := range s.stats {
		out = append(out, st.snapshot(name))
	}
	return out
}

// ToolInfos proxies to the underlying registry for the LLM-facing tool
// catalogue the Agent Loop advertises each turn.
func (s *Scheduler) ToolInfos() ([]*schema.ToolInfo, error) {
	return s.registry.ToolInfos()
}
