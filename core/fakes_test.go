package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pkt.systems/shellpane/schema"
)

type fakeSpawn struct {
	line string
	dir  string
}

type fakeController struct {
	mu          sync.Mutex
	observer    ProcessObserver
	seq         uint64
	live        bool
	killed      bool
	inputClosed bool
	notFound    map[string]bool
	spawns      []fakeSpawn
	written     []byte
}

func newFakeController(notFound ...string) *fakeController {
	c := &fakeController{notFound: make(map[string]bool)}
	for _, name := range notFound {
		c.notFound[name] = true
	}
	return c
}

func (c *fakeController) factory(observer ProcessObserver) ProcessController {
	c.observer = observer
	return c
}

func (c *fakeController) Spawn(_ context.Context, line, dir string) (schema.ProcessInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return schema.ProcessInfo{}, schema.ErrEmptyCommand
	}
	if c.live {
		return schema.ProcessInfo{}, schema.ErrProcessBusy
	}
	if c.notFound[fields[0]] {
		return schema.ProcessInfo{}, fmt.Errorf("%s: %w", fields[0], schema.ErrCommandNotFound)
	}
	c.seq++
	c.live = true
	c.killed = false
	c.inputClosed = false
	c.written = nil
	c.spawns = append(c.spawns, fakeSpawn{line: line, dir: dir})
	return schema.ProcessInfo{Seq: c.seq, PID: 1000 + int(c.seq), Program: fields[0], Args: fields[1:], Dir: dir}, nil
}

func (c *fakeController) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return nil
	}
	c.written = append(c.written, p...)
	return nil
}

func (c *fakeController) CloseInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputClosed = true
	return nil
}

func (c *fakeController) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live || c.killed {
		return false
	}
	c.killed = true
	return true
}

func (c *fakeController) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *fakeController) output(stream schema.Stream, text string) {
	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()
	c.observer.OnProcessOutput(schema.ProcessOutput{Seq: seq, Stream: stream, Text: text})
}

func (c *fakeController) exit(code int) {
	c.mu.Lock()
	seq := c.seq
	interrupted := c.killed
	c.live = false
	c.mu.Unlock()
	c.observer.OnProcessExit(schema.ProcessExit{Seq: seq, ExitCode: code, Interrupted: interrupted, Signaled: interrupted})
}

func (c *fakeController) exitWith(err error) {
	c.mu.Lock()
	seq := c.seq
	c.live = false
	c.mu.Unlock()
	c.observer.OnProcessExit(schema.ProcessExit{Seq: seq, ExitCode: -1, Err: err})
}

func (c *fakeController) spawnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spawns)
}

func (c *fakeController) writtenBytes() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.written)
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []schema.ChunkEvent
	states []schema.StateEvent
}

func (s *recordingSink) OnChunk(event schema.ChunkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, event)
}

func (s *recordingSink) OnState(event schema.StateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, event)
}

func (s *recordingSink) chunkTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.chunks))
	for _, event := range s.chunks {
		out = append(out, event.Chunk.Text)
	}
	return out
}

func newTestSession(t *testing.T, dir string, ctrl *fakeController, sink EventSink) *Session {
	t.Helper()
	session, err := NewSession(schema.SessionConfig{WorkingDir: dir, StateDir: t.TempDir()}, SessionDeps{
		ID:        "s1",
		Processes: ctrl.factory,
		EventSink: sink,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func typeLine(t *testing.T, s *Session, text string) {
	t.Helper()
	for _, r := range text {
		if err := s.HandleKey(context.Background(), schema.CharKey(r)); err != nil {
			t.Fatalf("handle key: %v", err)
		}
	}
}

func pressKey(t *testing.T, s *Session, key schema.KeyEvent) {
	t.Helper()
	if err := s.HandleKey(context.Background(), key); err != nil {
		t.Fatalf("handle key: %v", err)
	}
}
