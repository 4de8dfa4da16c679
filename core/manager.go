package core

import (
	"context"
	"errors"
	"sort"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/internal/logx"
	"pkt.systems/shellpane/schema"
)

// Manager hosts independent sessions. Sessions share no mutable state; the
// manager only tracks them and loads and saves per-owner history.
type Manager struct {
	cfg      schema.SessionConfig
	deps     ManagerDeps
	logger   pslog.Logger
	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
}

// CreateRequest describes a new session.
type CreateRequest struct {
	// ID is optional; a random id is assigned when empty.
	ID    schema.SessionID
	Owner schema.OwnerID
	// WorkingDir overrides the configured initial working directory.
	WorkingDir string
}

// NewManager constructs a session manager.
func NewManager(cfg schema.SessionConfig, deps ManagerDeps) (*Manager, error) {
	normalized, err := schema.NormalizeSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Processes == nil {
		return nil, errors.New("process controller factory is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:      normalized,
		deps:     deps,
		logger:   logger,
		sessions: make(map[schema.SessionID]*Session),
	}, nil
}

// Create starts a new session. When a history store is configured and the
// request names an owner, the owner's saved history seeds the session.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if req.Owner != "" {
		if err := schema.ValidateOwnerID(req.Owner); err != nil {
			return nil, err
		}
	}
	id := req.ID
	if id == "" {
		id = newSessionID()
	}
	log := logx.WithOwnerSession(ctx, req.Owner, id)

	var history []string
	if m.deps.History != nil && req.Owner != "" {
		entries, err := m.deps.History.LoadHistory(ctx, req.Owner)
		if err != nil {
			log.Warn("session history load failed", "err", err)
		} else {
			history = entries
		}
	}

	cfg := m.cfg
	if req.WorkingDir != "" {
		cfg.WorkingDir = req.WorkingDir
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, errors.New("session already exists")
	}
	m.mu.Unlock()

	session, err := NewSession(cfg, SessionDeps{
		ID:         id,
		Owner:      req.Owner,
		Processes:  m.deps.Processes,
		EventSink:  m.deps.EventSink,
		Completion: m.deps.Completion,
		History:    history,
		Logger:     m.logger,
	})
	if err != nil {
		log.Warn("session create failed", "err", err)
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		_ = session.Close()
		return nil, errors.New("session already exists")
	}
	m.sessions[id] = session
	count := len(m.sessions)
	m.mu.Unlock()
	log.Info("manager session added", "sessions", count)
	return session, nil
}

// Get returns a session by id.
func (m *Manager) Get(id schema.SessionID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, schema.ErrSessionNotFound
	}
	return session, nil
}

// List returns snapshots of all sessions ordered by id.
func (m *Manager) List() []schema.SessionSnapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	out := make([]schema.SessionSnapshot, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close closes and forgets a session, saving its owner's history.
func (m *Manager) Close(ctx context.Context, id schema.SessionID) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return schema.ErrSessionNotFound
	}
	return m.closeSession(ctx, session)
}

// CloseAll closes every session.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := m.closeSession(ctx, session); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeSession(ctx context.Context, session *Session) error {
	if err := session.Close(); err != nil {
		return err
	}
	if m.deps.History == nil || session.Owner() == "" {
		return nil
	}
	if err := m.deps.History.SaveHistory(ctx, session.Owner(), session.History()); err != nil {
		logx.WithOwnerSession(ctx, session.Owner(), session.ID()).Warn("session history save failed", "err", err)
		return err
	}
	return nil
}
