package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/internal/logx"
	"pkt.systems/shellpane/schema"
)

// Session is one terminal: a scrollback, an input line, a history, a working
// directory and at most one live child process.
//
// In StateEditing keystrokes edit the input line. In StateRunning they are
// forwarded to the child and the input line is empty. Child notifications
// are applied under the session lock, one chunk at a time.
type Session struct {
	id         schema.SessionID
	owner      schema.OwnerID
	cfg        schema.SessionConfig
	proc       ProcessController
	sink       EventSink
	completion CompletionProvider
	log        pslog.Logger

	mu      sync.Mutex
	emitMu  sync.Mutex
	state   schema.State
	cwd     string
	editor  lineEditor
	history *historyBuffer
	buffer  *buffer
	procSeq uint64
	idle    chan struct{}
	closed  bool
	pending []sessionEvent
}

type sessionEvent struct {
	chunk *schema.ChunkEvent
	state *schema.StateEvent
}

// NewSession constructs a session in StateEditing and appends its first
// prompt.
func NewSession(cfg schema.SessionConfig, deps SessionDeps) (*Session, error) {
	normalized, err := schema.NormalizeSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Processes == nil {
		return nil, errors.New("process controller factory is required")
	}
	id := deps.ID
	if id == "" {
		id = newSessionID()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if deps.Owner != "" {
		logger = logger.With("owner", deps.Owner)
	}
	idle := make(chan struct{})
	close(idle)
	s := &Session{
		id:         id,
		owner:      deps.Owner,
		cfg:        cfg,
		sink:       deps.EventSink,
		completion: deps.Completion,
		log:        logx.WithSession(logger, id),
		state:      schema.StateEditing,
		cwd:        cfg.WorkingDir,
		history:    newHistoryFromPersisted(deps.History, cfg.HistoryMax),
		buffer:     newBuffer(cfg.ScrollbackMaxChunks),
		idle:       idle,
	}
	s.proc = deps.Processes(sessionObserver{s: s})
	if s.proc == nil {
		return nil, errors.New("process controller factory returned nil")
	}

	s.mu.Lock()
	s.appendLocked(s.promptChunkLocked())
	s.unlockAndEmit()
	s.log.Info("session created", "cwd", s.cwd, "history", s.history.Len())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() schema.SessionID {
	return s.id
}

// Owner returns who the session's history belongs to.
func (s *Session) Owner() schema.OwnerID {
	return s.owner
}

// State returns the current controller state.
func (s *Session) State() schema.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WorkingDir returns the session's working directory.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Prompt returns the prompt text for the current working directory.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptLocked()
}

// Input returns the editable input region. It is empty while running.
func (s *Session) Input() schema.InputSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.InputSnapshot{Text: s.editor.String(), Cursor: s.editor.Cursor()}
}

// History returns submitted commands, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries()
}

// Chunks returns every retained scrollback chunk.
func (s *Session) Chunks() []schema.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Chunks()
}

// Info returns a read-only view of the session.
func (s *Session) Info() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.SessionSnapshot{
		ID:         s.id,
		Owner:      s.owner,
		State:      s.state,
		WorkingDir: s.cwd,
		Prompt:     s.promptLocked(),
		Input:      schema.InputSnapshot{Text: s.editor.String(), Cursor: s.editor.Cursor()},
	}
}

// Snapshot returns the scrollback window for a viewport of limit chunks.
func (s *Session) Snapshot(limit int) schema.ScrollbackSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.buffer.Snapshot(limit)
	return schema.ScrollbackSnapshot{
		SessionID:    s.id,
		Chunks:       view.Chunks,
		TotalChunks:  view.TotalChunks,
		ScrollOffset: view.ScrollOffset,
		AtBottom:     view.AtBottom,
	}
}

// Scroll moves the scrollback view; positive delta shows older chunks.
func (s *Session) Scroll(delta, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Scroll(delta, limit)
}

// ResetScroll returns the scrollback view to the bottom.
func (s *Session) ResetScroll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.ResetScroll()
}

// HandleKey routes one keystroke according to the current state.
func (s *Session) HandleKey(ctx context.Context, key schema.KeyEvent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	if s.state == schema.StateRunning {
		s.forwardKeyLocked(key)
	} else {
		s.editKeyLocked(ctx, key)
	}
	s.unlockAndEmit()
	return nil
}

// Submit runs line as if it had been typed and entered. Failures to run it
// are rendered into the scrollback; only a live process or a closed session
// is reported as an error.
func (s *Session) Submit(ctx context.Context, line string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	if s.state == schema.StateRunning {
		s.mu.Unlock()
		return NewShellError(ShellErrorBusy, "submit", line, nil)
	}
	s.editor.Clear()
	s.submitLocked(ctx, line)
	s.unlockAndEmit()
	return nil
}

// HistoryPrevious loads the next older history entry into the input line.
func (s *Session) HistoryPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyPreviousLocked()
}

// HistoryNext loads the next newer history entry into the input line.
func (s *Session) HistoryNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyNextLocked()
}

// Interrupt kills the live process and appends the interrupt marker. It
// reports whether a process was killed; it is safe to call at any time.
func (s *Session) Interrupt() bool {
	s.mu.Lock()
	killed := s.interruptLocked()
	s.unlockAndEmit()
	return killed
}

// CloseInput closes the live process's stdin, like Ctrl+D while running.
// It is a no-op while editing.
func (s *Session) CloseInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return schema.ErrSessionClosed
	}
	if s.state != schema.StateRunning {
		return nil
	}
	return s.proc.CloseInput()
}

// WaitIdle blocks until no process is live or ctx is done.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further input and kills a live process. Closing twice is a
// no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.state == schema.StateRunning {
		s.proc.Interrupt()
	}
	s.log.Info("session closed", "cwd", s.cwd)
	return nil
}

// Complete asks the completion provider for candidates at a file position.
func (s *Session) Complete(ctx context.Context, filePath string, line, column int) ([]string, error) {
	if s.completion == nil {
		return nil, nil
	}
	return s.completion.Complete(ctx, filePath, line, column)
}

func (s *Session) editKeyLocked(ctx context.Context, key schema.KeyEvent) {
	switch {
	case key.Code == schema.KeyEnter:
		s.submitLocked(ctx, s.editor.TakeAndClear())
	case key.Printable():
		s.editor.InsertRune(key.Char)
	case key.Code == schema.KeyBackspace, key.IsCtrl('h'):
		s.editor.Backspace()
	case key.Code == schema.KeyDelete:
		s.editor.Delete()
	case key.Code == schema.KeyLeft, key.IsCtrl('b'):
		s.editor.MoveLeft()
	case key.Code == schema.KeyRight, key.IsCtrl('f'):
		s.editor.MoveRight()
	case key.Code == schema.KeyHome, key.IsCtrl('a'):
		s.editor.MoveStart()
	case key.Code == schema.KeyEnd, key.IsCtrl('e'):
		s.editor.MoveEnd()
	case key.IsAlt('b'):
		s.editor.MoveWordLeft()
	case key.IsAlt('f'):
		s.editor.MoveWordRight()
	case key.IsCtrl('w'):
		s.editor.DeleteWordBackward()
	case key.IsCtrl('u'):
		s.editor.KillLineStart()
	case key.IsCtrl('k'):
		s.editor.KillLineEnd()
	case key.Code == schema.KeyUp, key.IsCtrl('p'):
		s.historyPreviousLocked()
	case key.Code == schema.KeyDown, key.IsCtrl('n'):
		s.historyNextLocked()
	case key.IsCtrl('c'):
		s.editor.Clear()
		s.history.ResetNavigation()
	default:
		s.log.Trace("session key ignored", "code", key.Code, "char", key.Char, "mods", key.Mods)
	}
}

func (s *Session) forwardKeyLocked(key schema.KeyEvent) {
	var data []byte
	switch {
	case key.IsCtrl('c'):
		s.interruptLocked()
		return
	case key.IsCtrl('d'):
		if err := s.proc.CloseInput(); err != nil {
			s.log.Debug("session close stdin failed", "err", err)
		}
		return
	case key.Code == schema.KeyEnter:
		data = []byte{'\n'}
	case key.Code == schema.KeyTab:
		data = []byte{'\t'}
	case key.Code == schema.KeyBackspace:
		data = []byte{0x7f}
	case key.Code == schema.KeyEscape:
		data = []byte{0x1b}
	case key.Code != schema.KeyNone:
		return
	case key.Mods.Has(schema.ModCtrl):
		if key.Char < 'a' || key.Char > 'z' {
			return
		}
		data = []byte{byte(key.Char-'a') + 1}
	case key.Char != 0:
		data = []byte(string(key.Char))
		if key.Mods.Has(schema.ModAlt) {
			data = append([]byte{0x1b}, data...)
		}
	default:
		return
	}
	if err := s.proc.Write(data); err != nil {
		s.log.Debug("session stdin write failed", "err", err)
	}
}

func (s *Session) submitLocked(ctx context.Context, line string) {
	if strings.TrimSpace(line) == "" {
		s.history.ResetNavigation()
		s.appendLocked(s.promptChunkLocked())
		return
	}
	s.appendLocked(schema.Chunk{Kind: schema.ChunkEcho, Text: s.promptLocked() + line})
	s.history.Append(line)

	tokens, err := splitCommandLine(line)
	if err != nil {
		s.log.Debug("session command rejected", "command", line, "err", err)
		s.appendStatusLocked(fmt.Sprintf("error: %v", err))
		s.appendLocked(s.promptChunkLocked())
		return
	}
	if len(tokens) > 0 && tokens[0] == builtinCd {
		s.changeDirLocked(tokens[1:])
		s.appendLocked(s.promptChunkLocked())
		return
	}

	info, err := s.proc.Spawn(ctx, line, s.cwd)
	if err != nil {
		s.log.Info("session spawn rejected", "command", line, "err", err)
		s.appendStatusLocked(spawnErrorText(tokens, err))
		s.appendLocked(s.promptChunkLocked())
		return
	}
	s.procSeq = info.Seq
	s.state = schema.StateRunning
	s.idle = make(chan struct{})
	s.stateEventLocked()
	logx.WithProcess(s.log, info).Info("session process started", "cwd", info.Dir)
}

func spawnErrorText(tokens []string, err error) string {
	if errors.Is(err, schema.ErrCommandNotFound) {
		program := ""
		if len(tokens) > 0 {
			program = tokens[0]
		}
		return NewShellError(ShellErrorCommandNotFound, "spawn", program, err).Error()
	}
	return fmt.Sprintf("error: %v", err)
}

func (s *Session) changeDirLocked(args []string) {
	dir, err := changeDir(s.cwd, args)
	if err != nil {
		s.log.Debug("session cd failed", "args", args, "err", err)
		s.appendStatusLocked(err.Error())
		return
	}
	if dir == s.cwd {
		return
	}
	s.log.Debug("session cd", "from", s.cwd, "to", dir)
	s.cwd = dir
	s.stateEventLocked()
}

func (s *Session) historyPreviousLocked() bool {
	if s.state != schema.StateEditing {
		return false
	}
	entry, ok := s.history.Previous()
	if !ok {
		return false
	}
	s.editor.SetContent(entry)
	return true
}

func (s *Session) historyNextLocked() bool {
	if s.state != schema.StateEditing {
		return false
	}
	entry, ok := s.history.Next()
	if !ok {
		return false
	}
	s.editor.SetContent(entry)
	return true
}

func (s *Session) interruptLocked() bool {
	if s.state != schema.StateRunning {
		return false
	}
	if !s.proc.Interrupt() {
		return false
	}
	s.appendLocked(schema.Chunk{Kind: schema.ChunkInterrupt, Text: s.cfg.InterruptMarker})
	s.log.Info("session process interrupted", "proc_seq", s.procSeq)
	return true
}

func (s *Session) onProcessOutput(out schema.ProcessOutput) {
	if out.Text == "" {
		return
	}
	s.mu.Lock()
	if s.state != schema.StateRunning || out.Seq != s.procSeq {
		s.mu.Unlock()
		s.log.Trace("session stale output dropped", "proc_seq", out.Seq)
		return
	}
	kind := schema.ChunkStdout
	if out.Stream == schema.StreamStderr {
		kind = schema.ChunkStderr
	}
	s.appendLocked(schema.Chunk{Kind: kind, Text: out.Text})
	s.unlockAndEmit()
}

func (s *Session) onProcessExit(exit schema.ProcessExit) {
	s.mu.Lock()
	if s.state != schema.StateRunning || exit.Seq != s.procSeq {
		s.mu.Unlock()
		s.log.Debug("session stale exit dropped", "proc_seq", exit.Seq)
		return
	}
	if exit.StartFailed() {
		s.appendStatusLocked(fmt.Sprintf("error: %v", exit.Err))
	}
	s.state = schema.StateEditing
	s.editor.Clear()
	s.history.ResetNavigation()
	s.appendLocked(s.promptChunkLocked())
	close(s.idle)
	s.stateEventLocked()
	s.log.Info("session process exited", "proc_seq", exit.Seq, "exit_code", exit.ExitCode, "signaled", exit.Signaled, "interrupted", exit.Interrupted, "err", exit.Err)
	s.unlockAndEmit()
}

func (s *Session) promptLocked() string {
	return s.cwd + s.cfg.PromptSuffix
}

func (s *Session) promptChunkLocked() schema.Chunk {
	return schema.Chunk{Kind: schema.ChunkPrompt, Text: s.promptLocked()}
}

func (s *Session) appendStatusLocked(text string) {
	s.appendLocked(schema.Chunk{Kind: schema.ChunkStatus, Text: text})
}

func (s *Session) appendLocked(chunks ...schema.Chunk) {
	s.buffer.Append(chunks...)
	if s.sink == nil {
		return
	}
	now := time.Now()
	for _, chunk := range chunks {
		event := schema.ChunkEvent{SessionID: s.id, Chunk: chunk, Timestamp: now}
		s.pending = append(s.pending, sessionEvent{chunk: &event})
	}
}

func (s *Session) stateEventLocked() {
	if s.sink == nil {
		return
	}
	event := schema.StateEvent{SessionID: s.id, State: s.state, WorkingDir: s.cwd, Timestamp: time.Now()}
	s.pending = append(s.pending, sessionEvent{state: &event})
}

// unlockAndEmit releases s.mu and delivers queued events. emitMu is taken
// before s.mu is released so events reach the sink in the order they were
// applied.
func (s *Session) unlockAndEmit() {
	events := s.pending
	s.pending = nil
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, event := range events {
		switch {
		case event.chunk != nil:
			s.sink.OnChunk(*event.chunk)
		case event.state != nil:
			s.sink.OnState(*event.state)
		}
	}
}

type sessionObserver struct {
	s *Session
}

func (o sessionObserver) OnProcessOutput(out schema.ProcessOutput) {
	o.s.onProcessOutput(out)
}

func (o sessionObserver) OnProcessExit(exit schema.ProcessExit) {
	o.s.onProcessExit(exit)
}
