package shellpane

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/internal/childproc"
	"pkt.systems/shellpane/internal/complete"
	"pkt.systems/shellpane/internal/eventbus"
	"pkt.systems/shellpane/internal/persist"
	"pkt.systems/shellpane/schema"
	"pkt.systems/shellpane/sshserver"
)

// Server composes the session manager with its display front ends.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Session schema.SessionConfig
	SSH     sshserver.Config
	// HistoryDir holds per-owner history files when Session.PersistHistory
	// is set and no history store is injected.
	HistoryDir string
}

// ServerDeps captures dependencies required to build the server. Every
// field is optional.
type ServerDeps struct {
	Processes  core.ProcessControllerFactory
	EventSink  core.EventSink
	Completion core.CompletionProvider
	History    core.HistoryStore
	Logger     pslog.Logger
	// SSHListener replaces listening on SSH.Addr.
	SSHListener net.Listener
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableSSH bool
}

// WithSSH enables the SSH server.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable shellpane server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableSSH {
		return nil, errors.New("no services enabled")
	}

	normalized, err := schema.NormalizeSessionConfig(cfg.Session)
	if err != nil {
		return nil, err
	}
	cfg.Session = normalized

	manager, bus, err := NewManager(cfg, deps)
	if err != nil {
		return nil, err
	}

	sshSrv := &sshserver.Server{
		Config:   cfg.SSH,
		Listener: deps.SSHListener,
		Manager:  manager,
		EventBus: bus,
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		manager: manager,
		bus:     bus,
		sshSrv:  sshSrv,
	}, nil
}

// NewManager builds a session manager and its event bus the way New does,
// for front ends that drive sessions without the SSH server.
func NewManager(cfg ServerConfig, deps ServerDeps) (*core.Manager, *eventbus.Bus, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	managerDeps, bus, err := buildManagerDeps(cfg, deps, logger)
	if err != nil {
		return nil, nil, err
	}
	manager, err := core.NewManager(cfg.Session, managerDeps)
	if err != nil {
		return nil, nil, err
	}
	return manager, bus, nil
}

func buildManagerDeps(cfg ServerConfig, deps ServerDeps, logger pslog.Logger) (core.ManagerDeps, *eventbus.Bus, error) {
	bus := eventbus.New(logger)
	sinks := make([]core.EventSink, 0, 2)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	sinks = append(sinks, bus)
	var sink core.EventSink = bus
	if len(sinks) > 1 {
		sink = eventFanout{sinks: sinks}
	}

	processes := deps.Processes
	if processes == nil {
		processes = childproc.Factory(childproc.Config{}, logger)
	}
	completion := deps.Completion
	if completion == nil {
		completion = complete.NewWords(0)
	}
	history := deps.History
	if history == nil && cfg.Session.PersistHistory {
		dir := cfg.HistoryDir
		if dir == "" {
			return core.ManagerDeps{}, nil, errors.New("history dir is required to persist history")
		}
		store, err := persist.NewStoreWithLogger(dir, logger)
		if err != nil {
			return core.ManagerDeps{}, nil, err
		}
		history = store
	}
	return core.ManagerDeps{
		Processes:  processes,
		EventSink:  sink,
		Completion: completion,
		History:    history,
		Logger:     logger,
	}, bus, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	manager *core.Manager
	bus     *eventbus.Bus
	sshSrv  *sshserver.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"ssh", s.options.enableSSH,
		"ssh_addr", s.cfg.SSH.Addr,
		"working_dir", s.cfg.Session.WorkingDir,
		"persist_history", s.cfg.Session.PersistHistory,
	)
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	serverCtx := s.ctx
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	if s.manager != nil {
		log.Info("server stop requested", "sessions", len(s.manager.List()), "attached", s.attachedSessions())
	} else {
		log.Info("server stop requested")
	}
	if s.manager != nil {
		if err := s.manager.CloseAll(context.Background()); err != nil {
			log.Warn("server session close failed", "err", err)
		} else {
			log.Info("server session close ok")
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-serverCtx.Done():
		log.Info("server stopped")
		return nil
	}
}

// attachedSessions counts sessions with at least one terminal subscribed.
func (s *compositeServer) attachedSessions() int {
	if s.manager == nil || s.bus == nil {
		return 0
	}
	attached := 0
	for _, info := range s.manager.List() {
		if s.bus.Subscribers(info.ID) > 0 {
			attached++
		}
	}
	return attached
}
