package persist

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pkt.systems/shellpane/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing snapshot")
	}
	entries, err := store.LoadHistory(context.Background(), "alice")
	if err != nil || entries != nil {
		t.Fatalf("expected no history, got %+v (%v)", entries, err)
	}
}

func TestStoreHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	want := []string{"ls -la", "cd /tmp", "ls -la"}
	if err := store.SaveHistory(context.Background(), "alice", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadHistory(context.Background(), "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("history mismatch:\nwant: %+v\ngot:  %+v", want, got)
	}
	info, err := os.Stat(filepath.Join(dir, "alice.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "state-*.json"))
	if len(leftovers) != 0 {
		t.Fatalf("expected temp files to be renamed, got %v", leftovers)
	}
}

func TestStoreLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path := filepath.Join(dir, "alice.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	if _, _, err := store.Load("alice"); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestStorePathIsSanitized(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cases := map[string]string{
		"alice":     "alice.json",
		"a/b":       "a_b.json",
		"..":        "unknown.json",
		"":          "unknown.json",
		"bob.smith": "bob.smith.json",
	}
	for owner, want := range cases {
		if got := filepath.Base(store.pathForOwner(schema.OwnerID(owner))); got != want {
			t.Fatalf("owner %q: expected %q, got %q", owner, want, got)
		}
	}
}

func TestNewStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
