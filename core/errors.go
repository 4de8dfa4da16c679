package core

import (
	"errors"
	"fmt"

	"pkt.systems/shellpane/schema"
)

// ShellErrorKind classifies failures the session renders as scrollback text.
type ShellErrorKind string

const (
	// ShellErrorEmptyCommand is a blank command handed to spawn.
	ShellErrorEmptyCommand ShellErrorKind = "empty_command"
	// ShellErrorInvalidCommand is a command line that could not be tokenized.
	ShellErrorInvalidCommand ShellErrorKind = "invalid_command"
	// ShellErrorCommandNotFound is a program missing from the search path.
	ShellErrorCommandNotFound ShellErrorKind = "command_not_found"
	// ShellErrorPathNotFound is a missing directory change target.
	ShellErrorPathNotFound ShellErrorKind = "path_not_found"
	// ShellErrorNotDirectory is a directory change target that is a file.
	ShellErrorNotDirectory ShellErrorKind = "not_directory"
	// ShellErrorPermissionDenied is a directory change target that is not searchable.
	ShellErrorPermissionDenied ShellErrorKind = "permission_denied"
	// ShellErrorProcess is a child that failed to start or exited abnormally.
	ShellErrorProcess ShellErrorKind = "process"
	// ShellErrorBusy is a submission while a process is live.
	ShellErrorBusy ShellErrorKind = "busy"
)

var shellErrorSentinels = map[ShellErrorKind]error{
	ShellErrorEmptyCommand:     schema.ErrEmptyCommand,
	ShellErrorInvalidCommand:   schema.ErrInvalidCommand,
	ShellErrorCommandNotFound:  schema.ErrCommandNotFound,
	ShellErrorPathNotFound:     schema.ErrPathNotFound,
	ShellErrorNotDirectory:     schema.ErrNotDirectory,
	ShellErrorPermissionDenied: schema.ErrPermissionDenied,
	ShellErrorProcess:          schema.ErrProcessFailed,
	ShellErrorBusy:             schema.ErrProcessBusy,
}

// ShellError wraps a session failure with a stable classification.
// Op names the operation ("cd", "spawn"); Target is the path or program.
type ShellError struct {
	Kind   ShellErrorKind
	Op     string
	Target string
	Err    error
}

// NewShellError constructs a classified shell error.
func NewShellError(kind ShellErrorKind, op, target string, err error) *ShellError {
	return &ShellError{Kind: kind, Op: op, Target: target, Err: err}
}

// Error renders the message shown in the scrollback, for example
// "cd: no such file or directory: /tmp/x" or "foo: command not found".
func (e *ShellError) Error() string {
	if e == nil {
		return "shell error"
	}
	switch e.Kind {
	case ShellErrorCommandNotFound:
		return fmt.Sprintf("%s: command not found", e.Target)
	case ShellErrorPathNotFound, ShellErrorNotDirectory, ShellErrorPermissionDenied:
		return fmt.Sprintf("%s: %s: %s", e.Op, shellErrorSentinels[e.Kind], e.Target)
	}
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return e.Err.Error()
	}
	if sentinel, ok := shellErrorSentinels[e.Kind]; ok {
		return sentinel.Error()
	}
	return "shell error"
}

func (e *ShellError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the schema sentinel for the error kind, so callers can use
// errors.Is(err, schema.ErrPathNotFound) without caring about the cause.
func (e *ShellError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := shellErrorSentinels[e.Kind]
	return ok && sentinel == target
}

// ShellErrorKindOf returns the kind of the first ShellError in err's chain,
// falling back to the schema sentinels.
func ShellErrorKindOf(err error) ShellErrorKind {
	var shellErr *ShellError
	if errors.As(err, &shellErr) {
		return shellErr.Kind
	}
	for kind, sentinel := range shellErrorSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}
