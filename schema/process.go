package schema

// Stream identifies a child output stream.
type Stream string

const (
	// StreamStdout is the child's standard output.
	StreamStdout Stream = "stdout"
	// StreamStderr is the child's standard error.
	StreamStderr Stream = "stderr"
)

// ProcessInfo describes a spawned child process.
type ProcessInfo struct {
	// Seq increases with every spawn on a controller. Notifications carry it
	// so stale ones can be told apart.
	Seq     uint64
	PID     int
	Program string
	Args    []string
	Dir     string
}

// ProcessOutput is one decoded chunk of child output.
type ProcessOutput struct {
	Seq    uint64
	Stream Stream
	Text   string
}

// ProcessExit is delivered exactly once per spawned process.
type ProcessExit struct {
	Seq      uint64
	ExitCode int
	// Signaled is set when the child was terminated by a signal.
	Signaled bool
	// Interrupted is set when the controller killed the child.
	Interrupted bool
	// Err is set when the process failed to start or could not be waited on.
	Err error
}

// StartFailed reports whether the exit represents a start failure.
func (e ProcessExit) StartFailed() bool {
	return e.Err != nil
}
