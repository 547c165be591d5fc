// Package session implements the Session Manager and Agent Loop at the
// heart of the code-review agent runtime, per spec.md §4.1/§4.2.
//
// # Architecture
//
// The package is built around three collaborators:
//
//   - Manager: an in-memory, TTL-evicted map of active *types.Session, one
//     per conversation. There is no disk persistence — sessions do not
//     survive a process restart, by design (spec.md's non-goals exclude
//     cross-restart durability). Each session owns a private
//     *event.Bus so a slow client on one stream never backpressures
//     another session's.
//   - Loop: the ReAct agentic loop. Given a session and a user message, it
//     builds the next completion request from the session's history and
//     system prompt, streams the provider's response through the Stream
//     Parser, executes any requested tool calls via internal/scheduler
//     after gating each one with internal/permission's Checker and
//     DoomLoopDetector, and repeats until the model stops requesting
//     tools or the session's turn budget is exhausted.
//   - The Stream Parser (stream.go): turns a provider's chunked
//     *schema.Message stream into the StreamEvent sum type, accumulating
//     tool-call arguments by index/ID as they arrive in fragments.
//
// # Serialization
//
// Manager.Process holds the target session's lock for the duration of one
// turn, so at most one Loop.Run is ever in flight per session — the
// Session Manager's "exactly one loop per session" invariant from
// spec.md §4.1. A concurrent Process call for the same session blocks on
// the same mutex rather than racing the conversation history.
//
// # Cancellation
//
// Manager.Process re-arms the session's context as a child of the context
// it is called with. An HTTP handler that passes its request context
// means a client disconnect cancels the in-flight turn; Manager.Abort
// cancels it explicitly regardless of any live connection.
//
// # Context management
//
// The Loop compacts old messages into a single summary message once the
// estimated token count crosses CompactionConfig's threshold, keeping the
// most recent messages verbatim so continuity isn't lost.
package session
