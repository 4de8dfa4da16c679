package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

type contextKey int

const (
	ownerKey contextKey = iota
	sessionKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithOwner annotates the logger with the owner id if present.
func WithOwner(ctx context.Context, owner schema.OwnerID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if owner != "" {
		if current, ok := ctx.Value(ownerKey).(schema.OwnerID); ok && current == owner {
			return log
		}
		log = log.With("owner", owner)
	}
	return log
}

// WithOwnerSession annotates the logger with owner and session identifiers.
func WithOwnerSession(ctx context.Context, owner schema.OwnerID, sessionID schema.SessionID) pslog.Logger {
	log := WithOwner(ctx, owner)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithProcess annotates the logger with child process metadata.
func WithProcess(log pslog.Logger, info schema.ProcessInfo) pslog.Logger {
	if info.Seq != 0 {
		log = log.With("proc_seq", info.Seq)
	}
	if info.PID != 0 {
		log = log.With("pid", info.PID)
	}
	if info.Program != "" {
		log = log.With("program", info.Program)
	}
	return log
}

// ContextWithOwner stores the owner marker on the context for log de-duplication.
func ContextWithOwner(ctx context.Context, owner schema.OwnerID) context.Context {
	if ctx == nil || owner == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerKey, owner)
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithOwnerLogger attaches the logger and owner marker to the context.
func ContextWithOwnerLogger(ctx context.Context, log pslog.Logger, owner schema.OwnerID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithOwner(ctx, owner)
}

// ContextWithSessionLogger attaches the logger and owner/session markers to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, owner schema.OwnerID, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ContextWithOwner(ctx, owner), sessionID)
}
