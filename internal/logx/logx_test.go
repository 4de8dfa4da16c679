package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithProcessAddsProgram(t *testing.T) {
	capture := &logCapture{}
	log := WithProcess(newCaptureLogger(capture), schema.ProcessInfo{Program: "ls"})
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["program"] != "ls" {
		t.Fatalf("expected program field, got %+v", entry)
	}
	if _, ok := entry["pid"]; ok {
		t.Fatalf("did not expect pid for unstarted process")
	}
}

func TestWithOwnerSessionAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithOwnerSession(ctx, "alice", "s1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["owner"] != "alice" {
		t.Fatalf("expected owner field, got %+v", entry)
	}
	if entry["session"] != "s1" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestContextMarkersSkipDuplicateFields(t *testing.T) {
	capture := &logCapture{}
	base := newCaptureLogger(capture)
	annotated := base.With("owner", "alice", "session", "s1")
	ctx := ContextWithSessionLogger(context.Background(), annotated, "alice", "s1")
	log := WithOwnerSession(ctx, "alice", "s1")
	log.Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"owner"`)) != 1 {
		t.Fatalf("expected a single owner field, got %s", line)
	}
	if bytes.Count([]byte(line), []byte(`"session"`)) != 1 {
		t.Fatalf("expected a single session field, got %s", line)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
