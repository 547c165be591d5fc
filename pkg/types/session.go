package types

import (
	"context"
	"sync"
	"time"
)

// SessionState is the session's current activity state.
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateThinking    SessionState = "thinking"
	StateToolCalling SessionState = "tool-calling"
	StateResponding  SessionState = "responding"
	StateError       SessionState = "error"
)

// Session is the aggregate state for one conversation, per spec.md §3/§4.1.
// It is mutated only through its accessors, each of which takes an internal
// lock, so the Agent Loop always sees a consistent message log when building
// the next request. Lock/Unlock are a separate lock that serializes turns.
type Session struct {
	ID                  string
	CreatedAt           time.Time
	LastActivity        time.Time
	ProjectRoot         string
	UserMemory          string
	CustomInstructions  string
	Profile             *AgentProfile
	MaxTurns            int

	mu       sync.Mutex
	turnMu   sync.Mutex
	messages []Message
	state    SessionState
	turn     int
	tokens   int

	ctx    context.Context
	cancel context.CancelFunc
	stream chan Event
}

// NewSession constructs a Session with a fresh background cancellation
// context. The Session Manager replaces ctx/cancel with a derived one tied
// to its own lifecycle at registration time via Rearm.
func NewSession(id, projectRoot string, profile *AgentProfile, maxTurns int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		ProjectRoot:  projectRoot,
		Profile:      profile,
		MaxTurns:     maxTurns,
		state:        StateIdle,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Lock/Unlock expose the session's turn lock directly so the Session
// Manager can hold it for the duration of Process without this package
// needing to know about the Agent Loop. It is distinct from the lock the
// accessors take, so the loop can still use them while it is held.
func (s *Session) Lock()   { s.turnMu.Lock() }
func (s *Session) Unlock() { s.turnMu.Unlock() }

// Rearm replaces the session's cancellation context with a fresh child of
// parent, used when the Session Manager registers or re-attaches a
// cancellation source. The previous context's cancel is invoked first so
// no stray goroutine is left observing the old one.
func (s *Session) Rearm(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(parent)
}

// Context returns the session's current cancellation context. Callers must
// hold the session lock only if they also read/write other session state
// in the same critical section; Context()/Cancel() are safe to call
// unlocked since ctx/cancel are only replaced under lock by Rearm.
func (s *Session) Context() context.Context { return s.ctx }

// Cancel trips the session's cancellation handle.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the session's current activity state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session's activity state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Touch refreshes last-activity, used on resume and on every turn.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// IdleSince returns how long the session has been without activity.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActivity)
}

// Messages returns a copy of the ordered message log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendMessage appends one message to the log under the session lock.
func (s *Session) AppendMessage(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

// CompactMessages replaces the message log with a summary message followed
// by the tail of messages still worth keeping verbatim, per spec.md §4.5's
// context-compaction step.
func (s *Session) CompactMessages(summary Message, keep []Message) {
	s.mu.Lock()
	s.messages = append([]Message{summary}, keep...)
	s.mu.Unlock()
}

// Turn returns and Turn/IncrementTurn manage the current-turn counter.
func (s *Session) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

func (s *Session) IncrementTurn() int {
	s.mu.Lock()
	s.turn++
	v := s.turn
	s.mu.Unlock()
	return v
}

func (s *Session) ResetTurn() {
	s.mu.Lock()
	s.turn = 0
	s.mu.Unlock()
}

// AddTokens accumulates the cumulative token count.
func (s *Session) AddTokens(n int) {
	s.mu.Lock()
	s.tokens += n
	s.mu.Unlock()
}

func (s *Session) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// AttachStream associates a client streaming channel with the session.
// Returns false if another channel is already attached — one active
// stream per session, per spec.md §4.1.
func (s *Session) AttachStream(ch chan Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return false
	}
	s.stream = ch
	return true
}

// DetachStream removes the attached channel, e.g. on client disconnect.
func (s *Session) DetachStream(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == ch {
		s.stream = nil
	}
}

// Stream returns the currently attached channel, or nil.
func (s *Session) Stream() chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Summary is the read-only view returned by Session Manager listing
// operations and by Stats().
type Summary struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActivity time.Time    `json:"lastActivity"`
	State        SessionState `json:"state"`
	Turn         int          `json:"turn"`
	Tokens       int          `json:"tokens"`
}

// ToSummary snapshots the session's read-only fields.
func (s *Session) ToSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		State:        s.state,
		Turn:         s.turn,
		Tokens:       s.tokens,
	}
}

// Stats is the Session Manager's process-wide summary, per spec.md §4.1.
type Stats struct {
	Total            int       `json:"total"`
	ActiveWithin5Min int       `json:"activeWithin5Min"`
	Oldest           time.Time `json:"oldest,omitzero"`
	Newest           time.Time `json:"newest,omitzero"`
}
