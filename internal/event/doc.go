/*
Package event provides a type-safe pub/sub bus for the 8 SSE event kinds
defined in pkg/types (connected, thinking, tool_start, tool_progress,
tool_complete, response, complete, error).

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while keeping direct-call dispatch so subscribers retain full static type
information on types.Event.Data — no deserializing a wire envelope back
into a Go value.

# Basic usage

Publishing:

	event.Publish(types.Event{
		Kind: types.EventThinking,
		Data: types.ThinkingData{SessionID: id, Content: "..."},
	})

	event.PublishSync(types.Event{
		Kind: types.EventComplete,
		Data: types.CompleteData{SessionID: id, Message: msg},
	})

Subscribing:

	unsubscribe := event.Subscribe(types.EventResponse, func(e types.Event) {
		data := e.Data.(types.ResponseData)
		...
	})
	defer unsubscribe()

# Subscriber safety

PublishSync calls every subscriber synchronously in the publisher's
goroutine. Subscribers must return quickly, use non-blocking channel
sends, and never call Publish/PublishSync re-entrantly.

# Per-session buses

The SSE Emitter attaches one Bus per session (via NewBus), not the
package-level global bus, so a slow reader on one session's stream never
backpressures another session's.
*/
package event
