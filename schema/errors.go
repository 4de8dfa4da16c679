package schema

import "errors"

var (
	// ErrEmptyCommand indicates a blank command line was handed to spawn.
	ErrEmptyCommand = errors.New("empty command")
	// ErrInvalidCommand indicates a command line could not be tokenized.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrCommandNotFound indicates the program is not on the search path.
	ErrCommandNotFound = errors.New("command not found")
	// ErrPathNotFound indicates a directory change target does not exist.
	ErrPathNotFound = errors.New("no such file or directory")
	// ErrNotDirectory indicates a directory change target is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrPermissionDenied indicates a directory change target is not searchable.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProcessFailed indicates a child failed to start or exited abnormally.
	ErrProcessFailed = errors.New("process failed")
	// ErrProcessBusy indicates a process is already live.
	ErrProcessBusy = errors.New("process is running")
	// ErrSessionNotFound indicates a requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidOwner indicates an invalid owner identifier.
	ErrInvalidOwner = errors.New("invalid owner")
)
