package core

import "pkt.systems/shellpane/schema"

// EventSink receives scrollback and state events from sessions. Events for
// one session arrive in the order they were applied. Implementations must
// not block and must not call back into the session.
type EventSink interface {
	OnChunk(event schema.ChunkEvent)
	OnState(event schema.StateEvent)
}
