package schema

// ScrollbackSnapshot is a read-only view of the scrollback window.
type ScrollbackSnapshot struct {
	SessionID    SessionID
	Chunks       []Chunk
	TotalChunks  int
	ScrollOffset int
	AtBottom     bool
}

// InputSnapshot is the editable input region.
type InputSnapshot struct {
	Text   string
	Cursor int
}

// SessionSnapshot is a read-only view of session state for display surfaces.
type SessionSnapshot struct {
	ID         SessionID
	Owner      OwnerID
	State      State
	WorkingDir string
	Prompt     string
	Input      InputSnapshot
}
