package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/shellpane/schema"
)

func chunkKinds(chunks []schema.Chunk) []schema.ChunkKind {
	out := make([]schema.ChunkKind, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, chunk.Kind)
	}
	return out
}

func TestSessionStartsWithPrompt(t *testing.T) {
	s := newTestSession(t, "/home/u", newFakeController(), nil)
	chunks := s.Chunks()
	if len(chunks) != 1 || chunks[0] != (schema.Chunk{Kind: schema.ChunkPrompt, Text: "/home/u$ "}) {
		t.Fatalf("unexpected initial chunks: %+v", chunks)
	}
	if s.State() != schema.StateEditing {
		t.Fatalf("expected editing state, got %s", s.State())
	}
}

func TestSessionEchoHiScenario(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)

	if err := s.Submit(context.Background(), "echo hi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.State() != schema.StateRunning {
		t.Fatalf("expected running state, got %s", s.State())
	}
	ctrl.output(schema.StreamStdout, "hi\n")
	ctrl.exit(0)

	want := []schema.Chunk{
		{Kind: schema.ChunkPrompt, Text: "/home/u$ "},
		{Kind: schema.ChunkEcho, Text: "/home/u$ echo hi"},
		{Kind: schema.ChunkStdout, Text: "hi\n"},
		{Kind: schema.ChunkPrompt, Text: "/home/u$ "},
	}
	got := s.Chunks()
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if s.State() != schema.StateEditing {
		t.Fatalf("expected editing state, got %s", s.State())
	}
	if ctrl.spawns[0].dir != "/home/u" {
		t.Fatalf("expected spawn in /home/u, got %q", ctrl.spawns[0].dir)
	}
}

func TestSessionBlankSubmitOnlyAppendsPrompt(t *testing.T) {
	for _, line := range []string{"", " ", "\t  ", "   \t"} {
		ctrl := newFakeController()
		s := newTestSession(t, "/home/u", ctrl, nil)
		before := len(s.Chunks())
		if err := s.Submit(context.Background(), line); err != nil {
			t.Fatalf("submit %q: %v", line, err)
		}
		if len(s.History()) != 0 {
			t.Fatalf("expected no history for %q, got %+v", line, s.History())
		}
		if ctrl.spawnCount() != 0 {
			t.Fatalf("expected no spawn for %q", line)
		}
		chunks := s.Chunks()
		if len(chunks) != before+1 || chunks[len(chunks)-1].Kind != schema.ChunkPrompt {
			t.Fatalf("expected a single new prompt for %q, got %+v", line, chunks)
		}
		if s.State() != schema.StateEditing {
			t.Fatalf("expected editing state for %q", line)
		}
	}
}

func TestSessionSubmitRecordsHistoryAndRunsWhenFound(t *testing.T) {
	cases := []struct {
		line    string
		running bool
	}{
		{"ls -la", true},
		{"nosuchcmd --flag", false},
		{"  ls  ", true},
	}
	for _, tc := range cases {
		ctrl := newFakeController("nosuchcmd")
		s := newTestSession(t, "/home/u", ctrl, nil)
		if err := s.Submit(context.Background(), tc.line); err != nil {
			t.Fatalf("submit %q: %v", tc.line, err)
		}
		history := s.History()
		if len(history) != 1 || history[0] != tc.line {
			t.Fatalf("expected history [%q], got %+v", tc.line, history)
		}
		running := s.State() == schema.StateRunning
		if running != tc.running {
			t.Fatalf("line %q: expected running=%v, got state %s", tc.line, tc.running, s.State())
		}
	}
}

func TestSessionCommandNotFoundStaysEditing(t *testing.T) {
	ctrl := newFakeController("nosuchcmd")
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "nosuchcmd"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	kinds := chunkKinds(s.Chunks())
	want := []schema.ChunkKind{schema.ChunkPrompt, schema.ChunkEcho, schema.ChunkStatus, schema.ChunkPrompt}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected chunk kinds: %+v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("unexpected chunk kinds: %+v", kinds)
		}
	}
	if got := s.Chunks()[2].Text; got != "nosuchcmd: command not found" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestSessionInvalidQuotingIsReported(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), `echo "unterminated`); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ctrl.spawnCount() != 0 {
		t.Fatalf("expected no spawn for invalid command")
	}
	chunks := s.Chunks()
	status := chunks[len(chunks)-2]
	if status.Kind != schema.ChunkStatus || !strings.Contains(status.Text, "invalid command") {
		t.Fatalf("unexpected status chunk %+v", status)
	}
}

func TestSessionCdMissingPathLeavesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	ctrl := newFakeController()
	s := newTestSession(t, dir, ctrl, nil)
	before := s.WorkingDir()
	if err := s.Submit(context.Background(), "cd /definitely/not/a/real/path"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if after := s.WorkingDir(); after != before {
		t.Fatalf("expected working dir %q, got %q", before, after)
	}
	chunks := s.Chunks()
	status := chunks[len(chunks)-2]
	if status.Text != "cd: no such file or directory: /definitely/not/a/real/path" {
		t.Fatalf("unexpected status %q", status.Text)
	}
	if chunks[len(chunks)-1].Kind != schema.ChunkPrompt {
		t.Fatalf("expected trailing prompt")
	}
	if ctrl.spawnCount() != 0 {
		t.Fatalf("expected cd not to spawn")
	}
	if h := s.History(); len(h) != 1 || h[0] != "cd /definitely/not/a/real/path" {
		t.Fatalf("expected cd in history, got %+v", h)
	}
}

func TestSessionCdRelativeAndHome(t *testing.T) {
	dir := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.Mkdir(filepath.Join(dir, "sub dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(home, "proj"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ctrl := newFakeController()
	s := newTestSession(t, dir, ctrl, nil)

	if err := s.Submit(context.Background(), `cd "sub dir"`); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := s.WorkingDir(); got != filepath.Join(dir, "sub dir") {
		t.Fatalf("unexpected working dir %q", got)
	}
	if err := s.Submit(context.Background(), "cd .."); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := s.WorkingDir(); got != dir {
		t.Fatalf("expected %q after cd .., got %q", dir, got)
	}
	if err := s.Submit(context.Background(), "cd ~/proj"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := s.WorkingDir(); got != filepath.Join(home, "proj") {
		t.Fatalf("unexpected working dir %q", got)
	}
	if err := s.Submit(context.Background(), "cd"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := s.WorkingDir(); got != home {
		t.Fatalf("expected home %q, got %q", home, got)
	}
	if got := s.Prompt(); got != home+"$ " {
		t.Fatalf("unexpected prompt %q", got)
	}

	if err := s.Submit(context.Background(), "pwd"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ctrl.spawns[0].dir != home {
		t.Fatalf("expected spawn in %q, got %q", home, ctrl.spawns[0].dir)
	}
}

func TestSessionCdNotDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := newTestSession(t, dir, newFakeController(), nil)
	if err := s.Submit(context.Background(), "cd file.txt"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.WorkingDir() != dir {
		t.Fatalf("expected working dir unchanged")
	}
	chunks := s.Chunks()
	if got := chunks[len(chunks)-2].Text; got != "cd: not a directory: file.txt" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestSessionCdPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o600); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o700) })
	s := newTestSession(t, dir, newFakeController(), nil)
	if err := s.Submit(context.Background(), "cd locked"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.WorkingDir() != dir {
		t.Fatalf("expected working dir unchanged")
	}
	chunks := s.Chunks()
	if got := chunks[len(chunks)-2].Text; got != "cd: permission denied: locked" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestSessionRunningKeysAreForwarded(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := len(s.Chunks())

	typeLine(t, s, "hé")
	pressKey(t, s, schema.CodeKey(schema.KeyEnter))
	pressKey(t, s, schema.CodeKey(schema.KeyTab))
	pressKey(t, s, schema.CodeKey(schema.KeyBackspace))
	pressKey(t, s, schema.CodeKey(schema.KeyUp))
	pressKey(t, s, schema.CodeKey(schema.KeyLeft))
	pressKey(t, s, schema.CtrlKey('z'))

	if got := ctrl.writtenBytes(); got != "hé\n\t\x7f\x1a" {
		t.Fatalf("unexpected forwarded bytes %q", got)
	}
	if len(s.Chunks()) != before {
		t.Fatalf("expected no local echo, got %+v", s.Chunks()[before:])
	}
	if in := s.Input(); in.Text != "" {
		t.Fatalf("expected empty input while running, got %q", in.Text)
	}

	pressKey(t, s, schema.CtrlKey('d'))
	if !ctrl.inputClosed {
		t.Fatalf("expected ctrl+d to close stdin")
	}
}

func TestSessionInterruptAppendsMarkerAndReturnsToEditing(t *testing.T) {
	ctrl := newFakeController()
	sink := &recordingSink{}
	s := newTestSession(t, "/home/u", ctrl, sink)
	if err := s.Submit(context.Background(), "sleep 100"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	pressKey(t, s, schema.CtrlKey('c'))
	if s.State() != schema.StateRunning {
		t.Fatalf("expected running until exit notification")
	}
	chunks := s.Chunks()
	if last := chunks[len(chunks)-1]; last != (schema.Chunk{Kind: schema.ChunkInterrupt, Text: "^C"}) {
		t.Fatalf("expected interrupt marker, got %+v", last)
	}
	if s.Interrupt() {
		t.Fatalf("expected second interrupt to be a no-op")
	}
	ctrl.exit(-1)
	ctrl.exit(-1)
	if s.State() != schema.StateEditing {
		t.Fatalf("expected editing after exit")
	}
	prompts := 0
	for _, chunk := range s.Chunks() {
		if chunk.Kind == schema.ChunkPrompt {
			prompts++
		}
	}
	if prompts != 2 {
		t.Fatalf("expected exactly one prompt after exit, got %d prompts total", prompts)
	}
	if s.Interrupt() {
		t.Fatalf("expected interrupt after exit to be a no-op")
	}
	markers := 0
	for _, chunk := range s.Chunks() {
		if chunk.Kind == schema.ChunkInterrupt {
			markers++
		}
	}
	if markers != 1 {
		t.Fatalf("expected one interrupt marker, got %d", markers)
	}
}

func TestSessionSubmitWhileRunningIsBusy(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "sleep 1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := s.Submit(context.Background(), "ls")
	if !errors.Is(err, schema.ErrProcessBusy) {
		t.Fatalf("expected ErrProcessBusy, got %v", err)
	}
	if ctrl.spawnCount() != 1 {
		t.Fatalf("expected a single spawn")
	}
	if len(s.History()) != 1 {
		t.Fatalf("expected busy submit not to record history")
	}
}

func TestSessionStartFailureIsReported(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "racy"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctrl.exitWith(errors.New("exec format error"))
	chunks := s.Chunks()
	status := chunks[len(chunks)-2]
	if status.Kind != schema.ChunkStatus || status.Text != "error: exec format error" {
		t.Fatalf("unexpected status %+v", status)
	}
	if s.State() != schema.StateEditing {
		t.Fatalf("expected editing after start failure")
	}
}

func TestSessionDropsStaleOutput(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "true"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctrl.exit(0)
	before := len(s.Chunks())
	ctrl.output(schema.StreamStdout, "late")
	if len(s.Chunks()) != before {
		t.Fatalf("expected output after exit to be dropped")
	}
}

func TestSessionStderrChunksAreTagged(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "ls /nope"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctrl.output(schema.StreamStderr, "ls: /nope: No such file\n")
	ctrl.output(schema.StreamStdout, "")
	ctrl.exit(1)
	kinds := chunkKinds(s.Chunks())
	want := []schema.ChunkKind{schema.ChunkPrompt, schema.ChunkEcho, schema.ChunkStderr, schema.ChunkPrompt}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected kinds %+v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("unexpected kinds %+v", kinds)
		}
	}
}

func TestSessionEditingKeysAndHistory(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	for _, line := range []string{"a", "b"} {
		typeLine(t, s, line)
		pressKey(t, s, schema.CodeKey(schema.KeyEnter))
		ctrl.exit(0)
	}

	pressKey(t, s, schema.CodeKey(schema.KeyUp))
	if in := s.Input(); in.Text != "b" || in.Cursor != 1 {
		t.Fatalf("expected input b, got %+v", in)
	}
	pressKey(t, s, schema.CodeKey(schema.KeyUp))
	pressKey(t, s, schema.CodeKey(schema.KeyUp))
	if in := s.Input(); in.Text != "a" {
		t.Fatalf("expected input to stay at oldest, got %+v", in)
	}
	pressKey(t, s, schema.CodeKey(schema.KeyDown))
	pressKey(t, s, schema.CodeKey(schema.KeyDown))
	if in := s.Input(); in.Text != "" {
		t.Fatalf("expected blank input past newest, got %+v", in)
	}

	typeLine(t, s, "lx")
	pressKey(t, s, schema.CodeKey(schema.KeyBackspace))
	typeLine(t, s, "s")
	pressKey(t, s, schema.CodeKey(schema.KeyHome))
	typeLine(t, s, "# ")
	if in := s.Input(); in.Text != "# ls" || in.Cursor != 2 {
		t.Fatalf("unexpected input %+v", in)
	}
	pressKey(t, s, schema.CtrlKey('c'))
	if in := s.Input(); in.Text != "" {
		t.Fatalf("expected ctrl+c to clear input, got %+v", in)
	}
	if len(s.History()) != 2 {
		t.Fatalf("expected ctrl+c not to record history")
	}
}

func TestSessionHistoryUnavailableWhileRunning(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "ls"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.HistoryPrevious() {
		t.Fatalf("expected history navigation to be unavailable while running")
	}
	pressKey(t, s, schema.CodeKey(schema.KeyUp))
	ctrl.exit(0)
	if in := s.Input(); in.Text != "" {
		t.Fatalf("expected empty input after exit, got %+v", in)
	}
	if !s.HistoryPrevious() {
		t.Fatalf("expected history navigation after exit")
	}
	if in := s.Input(); in.Text != "ls" {
		t.Fatalf("expected ls, got %+v", in)
	}
}

func TestSessionSinkReceivesEventsInOrder(t *testing.T) {
	ctrl := newFakeController()
	sink := &recordingSink{}
	s := newTestSession(t, "/home/u", ctrl, sink)
	if err := s.Submit(context.Background(), "echo hi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctrl.output(schema.StreamStdout, "hi\n")
	ctrl.exit(0)

	want := []string{"/home/u$ ", "/home/u$ echo hi", "hi\n", "/home/u$ "}
	got := sink.chunkTexts()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %q, got %q", want, got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.states) != 2 || sink.states[0].State != schema.StateRunning || sink.states[1].State != schema.StateEditing {
		t.Fatalf("unexpected state events %+v", sink.states)
	}
}

func TestSessionWaitIdle(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.WaitIdle(context.Background()); err != nil {
		t.Fatalf("expected idle session, got %v", err)
	}
	if err := s.Submit(context.Background(), "sleep 1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while running, got %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.WaitIdle(context.Background()) }()
	ctrl.exit(0)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait idle: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for idle")
	}
}

func TestSessionCloseKillsProcessAndRejectsInput(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.Submit(context.Background(), "sleep 100"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ctrl.killed {
		t.Fatalf("expected close to kill the live process")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := s.Submit(context.Background(), "ls"); !errors.Is(err, schema.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.HandleKey(context.Background(), schema.CharKey('x')); !errors.Is(err, schema.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

type staticCompletion struct {
	file         string
	line, column int
}

func (c *staticCompletion) Complete(_ context.Context, filePath string, line, column int) ([]string, error) {
	c.file, c.line, c.column = filePath, line, column
	return []string{"alpha", "beta"}, nil
}

func TestSessionCompleteDelegates(t *testing.T) {
	provider := &staticCompletion{}
	s, err := NewSession(schema.SessionConfig{WorkingDir: "/home/u", StateDir: t.TempDir()}, SessionDeps{
		Processes:  newFakeController().factory,
		Completion: provider,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	got, err := s.Complete(context.Background(), "main.go", 3, 4)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(got) != 2 || got[0] != "alpha" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if provider.file != "main.go" || provider.line != 3 || provider.column != 4 {
		t.Fatalf("unexpected provider args %+v", provider)
	}
	if s.ID() == "" {
		t.Fatalf("expected generated session id")
	}
}

func TestSessionCloseInputOnlyWhileRunning(t *testing.T) {
	ctrl := newFakeController()
	s := newTestSession(t, "/home/u", ctrl, nil)
	if err := s.CloseInput(); err != nil {
		t.Fatalf("close input while editing: %v", err)
	}
	ctrl.mu.Lock()
	closed := ctrl.inputClosed
	ctrl.mu.Unlock()
	if closed {
		t.Fatalf("expected no stdin close while editing")
	}
	if err := s.Submit(context.Background(), "cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.CloseInput(); err != nil {
		t.Fatalf("close input: %v", err)
	}
	ctrl.mu.Lock()
	closed = ctrl.inputClosed
	ctrl.mu.Unlock()
	if !closed {
		t.Fatalf("expected stdin to be closed while running")
	}
}
