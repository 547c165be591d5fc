package server

import (
	"encoding/json"
	"net/http"

	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/internal/perr"
)

// chatRequest is the POST /chat body. SessionID is optional: omitting it
// creates a fresh session rooted at Directory (or the server's configured
// default) under Agent (or the server's DefaultAgent).
type chatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	Directory string `json:"directory,omitempty"`
	Agent     string `json:"agent,omitempty"`
	MaxTurns  int    `json:"maxTurns,omitempty"`
}

// postChat drives one turn of the Agent Loop and streams its events back
// as SSE. A brand-new session's id is returned in the X-Session-ID
// response header so the caller can address follow-up turns to it.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		profile, err := s.agentProfile(req.Agent)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		dir := req.Directory
		if dir == "" {
			dir = s.config.Directory
		}
		maxTurns := req.MaxTurns
		if maxTurns <= 0 {
			maxTurns = s.config.MaxTurns
		}
		sess := s.manager.Create(dir, profile, maxTurns)
		sessionID = sess.ID
	} else if _, ok := s.manager.Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}

	bus, ok := s.manager.Bus(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}

	w.Header().Set("X-Session-ID", sessionID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.streamSession(w, r, bus)
	}()

	_, err := s.manager.Process(r.Context(), sessionID, req.Message)
	<-done

	// The Agent Loop already published EventError (or nothing, on
	// cancellation) over bus before returning; the response is long since
	// committed to SSE, so there's nothing left to write here.
	if err != nil && perr.KindOf(err) != perr.Cancellation {
		logging.Error().Err(err).Str("session", sessionID).Msg("chat turn failed")
	}
}

// getChatStatus reports a session's current status.
func (s *Server) getChatStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionId is required")
		return
	}

	sess, ok := s.manager.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess.ToSummary())
}
