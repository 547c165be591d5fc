// Package server exposes a single HTTP surface in front of the Session
// Manager and Agent Loop: /chat.
//
// # Endpoints
//
//   - POST /chat: drives one turn of the Agent Loop. The request body
//     names a session (creating one if omitted) and the user's message;
//     the response streams Server-Sent Events from that session's
//     per-session event bus for the duration of the turn, ending at the
//     turn's "complete" or "error" event.
//   - GET /chat?sessionId=...: reports a session's current status
//     (state, turn count, token usage) without touching the Agent Loop.
//
// No other surface is exposed. Project browsing, file editing, TUI
// sync, and command/formatter execution are concerns of the tools the
// Agent Loop calls through the Tool Scheduler, not of this HTTP layer.
//
// # Components
//
//   - HTTP server: a Chi router with request ID, logging, recovery, and
//     CORS middleware.
//   - Session Manager: an in-memory, TTL-evicted registry of active
//     sessions (internal/session.Manager).
//   - Agent Loop: the ReAct cycle that drives one session's turn
//     (internal/session.Loop), wired to a provider Registry, tool
//     Registry, Tool Scheduler, permission Checker, and doom-loop
//     detector.
//   - SSE Emitter: per-request subscription to a session's event bus,
//     translating internal/event.Bus publications into SSE frames.
//
// # Usage
//
//	config := server.DefaultConfig()
//	config.Port = 8080
//	config.Directory = "/path/to/project"
//
//	srv := server.New(config, appConfig, providerRegistry, toolRegistry)
//	if err := srv.InitializeMCP(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.CloseMCP()
//
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
