package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Notifier is invoked whenever Ask must surface a pending request to
// whatever side channel the caller wires up (log line, a poll endpoint,
// a CLI prompt). The confirmation UX itself is the caller's concern; the
// Checker only tracks request/response state and session-scoped approvals.
type Notifier func(Request)

// Checker handles permission checks and approvals for one runtime.
type Checker struct {
	mu       sync.RWMutex
	approved map[string]map[PermissionType]bool // sessionID -> type -> approved
	patterns map[string]map[string]bool         // sessionID -> pattern -> approved
	pending  map[string]chan Response           // requestID -> response channel
	notify   Notifier
}

// NewChecker creates a Checker. notify may be nil, in which case Ask
// requests that aren't already approved block until ctx is cancelled.
func NewChecker(notify Notifier) *Checker {
	return &Checker{
		approved: make(map[string]map[PermissionType]bool),
		patterns: make(map[string]map[string]bool),
		pending:  make(map[string]chan Response),
		notify:   notify,
	}
}

// Check performs a permission check given a configured policy action.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "permission denied by configuration",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask resolves a request against cached session approvals, or blocks on a
// caller response delivered through Respond.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	c.mu.RLock()
	if sessionApprovals, ok := c.approved[req.SessionID]; ok && sessionApprovals[req.Type] {
		c.mu.RUnlock()
		return nil
	}
	if len(req.Pattern) > 0 {
		if sessionPatterns, ok := c.patterns[req.SessionID]; ok {
			allApproved := true
			for _, p := range req.Pattern {
				if !sessionPatterns[p] {
					allApproved = false
					break
				}
			}
			if allApproved {
				c.mu.RUnlock()
				return nil
			}
		}
	}
	c.mu.RUnlock()

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	respChan := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if c.notify != nil {
		c.notify(req)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respChan:
		switch resp.Action {
		case "once":
			return nil
		case "always":
			c.approve(req.SessionID, req.Type, req.Pattern)
			return nil
		case "reject":
			return &RejectedError{
				SessionID: req.SessionID,
				Type:      req.Type,
				CallID:    req.CallID,
				Metadata:  req.Metadata,
				Message:   "permission rejected by caller",
			}
		}
	}
	return nil
}

// Respond delivers a caller's decision for a pending request ID.
func (c *Checker) Respond(requestID string, action string) {
	c.mu.RLock()
	ch, ok := c.pending[requestID]
	c.mu.RUnlock()

	if ok {
		ch <- Response{RequestID: requestID, Action: action}
	}
}

func (c *Checker) approve(sessionID string, permType PermissionType, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[PermissionType]bool)
	}
	c.approved[sessionID][permType] = true

	if len(patterns) > 0 {
		if c.patterns[sessionID] == nil {
			c.patterns[sessionID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[sessionID][p] = true
		}
	}
}

// IsApproved reports whether a permission type is already approved for a session.
func (c *Checker) IsApproved(sessionID string, permType PermissionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sessionApprovals, ok := c.approved[sessionID]; ok {
		return sessionApprovals[permType]
	}
	return false
}

// IsPatternApproved reports whether a specific bash pattern is approved.
func (c *Checker) IsPatternApproved(sessionID string, pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sessionPatterns, ok := c.patterns[sessionID]; ok {
		return sessionPatterns[pattern]
	}
	return false
}

// ClearSession drops all approvals for a session, e.g. on session deletion.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, sessionID)
	delete(c.patterns, sessionID)
}

// ApprovePattern explicitly approves a bash pattern for a session.
func (c *Checker) ApprovePattern(sessionID string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patterns[sessionID] == nil {
		c.patterns[sessionID] = make(map[string]bool)
	}
	c.patterns[sessionID][pattern] = true
}
