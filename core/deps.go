package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

// HistoryStore persists per-owner command history across sessions.
type HistoryStore interface {
	LoadHistory(ctx context.Context, owner schema.OwnerID) ([]string, error)
	SaveHistory(ctx context.Context, owner schema.OwnerID, entries []string) error
}

// SessionDeps captures the collaborators of a single session.
type SessionDeps struct {
	ID    schema.SessionID
	Owner schema.OwnerID
	// Processes builds the session's process controller. Required.
	Processes  ProcessControllerFactory
	EventSink  EventSink
	Completion CompletionProvider
	// History seeds the session's history, oldest first.
	History []string
	Logger  pslog.Logger
}

// ManagerDeps captures optional dependencies for the session manager.
type ManagerDeps struct {
	// Processes builds a process controller per session. Required.
	Processes  ProcessControllerFactory
	EventSink  EventSink
	Completion CompletionProvider
	// History persists history per owner; nil keeps history in memory.
	History HistoryStore
	Logger  pslog.Logger
}
