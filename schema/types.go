package schema

// SessionID identifies a terminal session.
type SessionID string

// OwnerID identifies who a session belongs to (an SSH user, a local user).
// Persisted history is keyed by owner.
type OwnerID string

// State is the session controller state.
type State string

const (
	// StateEditing means the input line is editable and no process is live.
	StateEditing State = "editing"
	// StateRunning means a child process is live and owns keystrokes.
	StateRunning State = "running"
)

// ChunkKind classifies a scrollback chunk.
type ChunkKind string

const (
	// ChunkPrompt is a fresh prompt ("<cwd>$ ").
	ChunkPrompt ChunkKind = "prompt"
	// ChunkEcho is a submitted command echoed after its prompt.
	ChunkEcho ChunkKind = "echo"
	// ChunkStdout is child stdout text.
	ChunkStdout ChunkKind = "stdout"
	// ChunkStderr is child stderr text.
	ChunkStderr ChunkKind = "stderr"
	// ChunkStatus is a status or error line produced by the session itself.
	ChunkStatus ChunkKind = "status"
	// ChunkInterrupt is the marker appended when a process is interrupted.
	ChunkInterrupt ChunkKind = "interrupt"
)

// Chunk is one append to the scrollback.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// LineStart reports whether the chunk is rendered starting on a fresh line.
// Process output is rendered verbatim where the previous chunk ended.
func (c Chunk) LineStart() bool {
	switch c.Kind {
	case ChunkStdout, ChunkStderr:
		return false
	default:
		return true
	}
}
