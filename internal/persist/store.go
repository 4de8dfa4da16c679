package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/schema"
)

// HistorySnapshot captures an owner's command history for persistence.
type HistorySnapshot struct {
	Entries   []string  `json:"entries"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Store persists per-owner history snapshots to disk. It implements
// core.HistoryStore.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{dir: dir, log: logger.With("state_dir", dir)}, nil
}

// Load reads an owner's history snapshot from disk.
func (s *Store) Load(owner schema.OwnerID) (HistorySnapshot, bool, error) {
	path := s.pathForOwner(owner)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("state load miss", "owner", owner)
			return HistorySnapshot{}, false, nil
		}
		s.log.Warn("state load failed", "owner", owner, "err", err)
		return HistorySnapshot{}, false, err
	}
	var snapshot HistorySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.log.Warn("state load failed", "owner", owner, "err", err)
		return HistorySnapshot{}, false, err
	}
	s.log.Debug("state load ok", "owner", owner, "entries", len(snapshot.Entries))
	return snapshot, true, nil
}

// Save writes an owner's history snapshot to disk atomically.
func (s *Store) Save(owner schema.OwnerID, snapshot HistorySnapshot) error {
	path := s.pathForOwner(owner)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.log.Warn("state save failed", "owner", owner, "err", err)
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		s.log.Warn("state save failed", "owner", owner, "err", err)
		return err
	}
	s.log.Trace("state save ok", "owner", owner, "entries", len(snapshot.Entries))
	return nil
}

// LoadHistory returns the saved entries for owner, or nil when none exist.
func (s *Store) LoadHistory(_ context.Context, owner schema.OwnerID) ([]string, error) {
	snapshot, ok, err := s.Load(owner)
	if err != nil || !ok {
		return nil, err
	}
	return snapshot.Entries, nil
}

// SaveHistory replaces the saved entries for owner.
func (s *Store) SaveHistory(_ context.Context, owner schema.OwnerID, entries []string) error {
	return s.Save(owner, HistorySnapshot{Entries: append([]string(nil), entries...), UpdatedAt: time.Now().UTC()})
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) pathForOwner(owner schema.OwnerID) string {
	name := sanitize(string(owner))
	if name == "" || strings.Trim(name, ".") == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
