package core

import (
	"context"

	"pkt.systems/shellpane/schema"
)

// ProcessObserver receives child process notifications. Output for one
// process is delivered in arrival order and OnProcessExit fires exactly once,
// after the last output chunk.
type ProcessObserver interface {
	OnProcessOutput(out schema.ProcessOutput)
	OnProcessExit(exit schema.ProcessExit)
}

// ProcessController runs at most one child process at a time.
type ProcessController interface {
	// Spawn tokenizes commandLine and starts it in workingDir. Blank input
	// fails with schema.ErrEmptyCommand and unresolvable programs with
	// schema.ErrCommandNotFound, both before anything is started.
	Spawn(ctx context.Context, commandLine, workingDir string) (schema.ProcessInfo, error)
	// Write queues bytes for the child's stdin. It never blocks and is a
	// no-op when no process is live.
	Write(p []byte) error
	// CloseInput closes the child's stdin.
	CloseInput() error
	// Interrupt kills the live process. It reports whether this call did
	// the kill; later calls and calls after exit return false.
	Interrupt() bool
	// Live reports whether a process is running.
	Live() bool
}

// ProcessControllerFactory builds a controller that notifies observer.
type ProcessControllerFactory func(observer ProcessObserver) ProcessController
