package schema

import "time"

// EventType identifies an event published to display surfaces.
type EventType string

const (
	// EventChunk is a scrollback append.
	EventChunk EventType = "chunk"
	// EventState is a session state transition.
	EventState EventType = "state"
)

// ChunkEvent is published for every scrollback append.
type ChunkEvent struct {
	SessionID SessionID
	Chunk     Chunk
	Timestamp time.Time
}

// StateEvent is published when a session changes state.
type StateEvent struct {
	SessionID  SessionID
	State      State
	WorkingDir string
	Timestamp  time.Time
}
