package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/shellpane"
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/internal/appconfig"
	"pkt.systems/shellpane/schema"
	"pkt.systems/shellpane/tui"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	var workDir string
	var noColor bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session on this terminal, or read commands from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			serverCfg := toServerConfig(cfg)
			if workDir != "" {
				serverCfg.Session.WorkingDir = workDir
			}
			serverCfg.Session, err = schema.NormalizeSessionConfig(serverCfg.Session)
			if err != nil {
				return err
			}

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				out := &streamSink{stdout: cmd.OutOrStdout(), stderr: cmd.ErrOrStderr()}
				manager, _, err := shellpane.NewManager(serverCfg, shellpane.ServerDeps{
					Logger:    pslog.Ctx(ctx),
					EventSink: out,
				})
				if err != nil {
					return err
				}
				session, err := manager.Create(ctx, core.CreateRequest{Owner: localOwner()})
				if err != nil {
					return err
				}
				defer func() { _ = manager.Close(context.WithoutCancel(ctx), session.ID()) }()
				return runScript(ctx, session, cmd.InOrStdin(), out)
			}
			return runInteractive(ctx, serverCfg, fd, noColor)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&workDir, "dir", "C", "", "initial working directory")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "render without colors")
	return cmd
}

func runInteractive(ctx context.Context, cfg shellpane.ServerConfig, fd int, noColor bool) error {
	logger := pslog.Ctx(ctx)
	manager, bus, err := shellpane.NewManager(cfg, shellpane.ServerDeps{Logger: logger})
	if err != nil {
		return err
	}
	session, err := manager.Create(ctx, core.CreateRequest{Owner: localOwner()})
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close(context.WithoutCancel(ctx), session.ID()) }()

	width, height, err := term.GetSize(fd)
	if err != nil {
		logger.Debug("terminal size unavailable", "err", err)
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	resize := make(chan tui.Window, 1)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-winch:
				w, h, err := term.GetSize(fd)
				if err != nil {
					continue
				}
				select {
				case <-resize:
				default:
				}
				resize <- tui.Window{Width: w, Height: h}
			}
		}
	}()

	events, unsubscribe := bus.Subscribe(session.ID())
	defer unsubscribe()
	terminal, err := tui.New(tui.Options{
		In:      os.Stdin,
		Out:     os.Stdout,
		Session: session,
		Events:  events,
		Resize:  resize,
		Size:    tui.Window{Width: width, Height: height},
		NoColor: noColor,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return terminal.Run(runCtx)
}

// runScript submits each input line as a command and waits for it to
// finish before reading the next one. Each command's stdin is closed
// right away, so commands that read stdin see EOF.
func runScript(ctx context.Context, session *core.Session, in io.Reader, out *streamSink) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := session.Submit(ctx, line); err != nil {
			return err
		}
		// Commands get EOF on stdin; script lines are commands, not input.
		if err := session.CloseInput(); err != nil {
			return err
		}
		if err := session.WaitIdle(ctx); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return out.flush()
}

// localOwner names the local user's history. Names that are not valid
// owner ids fall back to "local".
func localOwner() schema.OwnerID {
	current, err := user.Current()
	if err != nil {
		return "local"
	}
	owner := schema.OwnerID(strings.ToLower(current.Username))
	if schema.ValidateOwnerID(owner) != nil {
		return "local"
	}
	return owner
}

// streamSink writes process output straight through and status lines to
// stderr. Prompts and echoes are not written.
type streamSink struct {
	mu      sync.Mutex
	stdout  io.Writer
	stderr  io.Writer
	openOut bool
	err     error
}

func (s *streamSink) OnChunk(event schema.ChunkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := event.Chunk
	switch chunk.Kind {
	case schema.ChunkStdout:
		s.write(s.stdout, chunk.Text)
		s.openOut = !strings.HasSuffix(chunk.Text, "\n")
	case schema.ChunkStderr:
		s.write(s.stderr, chunk.Text)
	case schema.ChunkStatus, schema.ChunkInterrupt:
		if s.openOut {
			s.write(s.stdout, "\n")
			s.openOut = false
		}
		s.write(s.stderr, strings.TrimSuffix(chunk.Text, "\n")+"\n")
	}
}

func (s *streamSink) OnState(schema.StateEvent) {}

func (s *streamSink) write(w io.Writer, text string) {
	if text == "" || s.err != nil {
		return
	}
	if _, err := io.WriteString(w, text); err != nil {
		s.err = err
	}
}

func (s *streamSink) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
