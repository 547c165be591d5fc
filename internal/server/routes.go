package server

// setupRoutes configures the server's entire HTTP surface: POST /chat
// drives one turn of the Agent Loop and streams its events back over SSE;
// GET /chat reports a session's current status. This is intentionally the
// whole surface — project browsing, file editing, TUI sync, and the rest
// of the teacher's REST API lived outside the Session Manager/Agent Loop
// this runtime wraps and have no home here.
func (s *Server) setupRoutes() {
	r := s.router

	r.Post("/chat", s.postChat)
	r.Get("/chat", s.getChatStatus)
}
