// Package childproc runs one child process at a time on plain pipes and
// reports its output and exit to a core.ProcessObserver.
package childproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/anmitsu/go-shlex"
	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/internal/logx"
	"pkt.systems/shellpane/schema"
)

const (
	defaultReadChunkSize = 4096
	defaultInputQueue    = 256
	defaultDrainTimeout  = 250 * time.Millisecond
)

var errInputQueueFull = errors.New("stdin queue full")

// Config tunes the controller.
type Config struct {
	// ReadChunkSize is the read size for stdout and stderr.
	ReadChunkSize int
	// InputQueue is the number of pending stdin writes before Write fails.
	InputQueue int
	// Env replaces the inherited environment when non-nil.
	Env []string
	// DrainTimeout bounds how long output is read after the child exits
	// while a background descendant still holds the pipes open.
	DrainTimeout time.Duration
}

// Controller implements core.ProcessController.
type Controller struct {
	cfg      Config
	observer core.ProcessObserver
	logger   pslog.Logger

	mu      sync.Mutex
	seq     uint64
	current *process
}

type process struct {
	info   schema.ProcessInfo
	cmd    *exec.Cmd
	pgid   int
	killed atomic.Bool
	done   chan struct{}
	exited sync.Once

	inMu     sync.Mutex
	input    chan []byte
	inClosed bool
}

// New constructs a controller that notifies observer.
func New(observer core.ProcessObserver, cfg Config, logger pslog.Logger) *Controller {
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = defaultReadChunkSize
	}
	if cfg.InputQueue <= 0 {
		cfg.InputQueue = defaultInputQueue
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Controller{cfg: cfg, observer: observer, logger: logger}
}

// Factory returns a core.ProcessControllerFactory building controllers with cfg.
func Factory(cfg Config, logger pslog.Logger) core.ProcessControllerFactory {
	return func(observer core.ProcessObserver) core.ProcessController {
		return New(observer, cfg, logger)
	}
}

// Spawn tokenizes commandLine with POSIX shell quoting, resolves the program
// and starts it in workingDir. A start failure after resolution still
// returns the process info; the failure is delivered as the exit.
func (c *Controller) Spawn(ctx context.Context, commandLine, workingDir string) (schema.ProcessInfo, error) {
	if err := ctx.Err(); err != nil {
		return schema.ProcessInfo{}, err
	}
	if strings.TrimSpace(commandLine) == "" {
		return schema.ProcessInfo{}, schema.ErrEmptyCommand
	}
	tokens, err := shlex.Split(commandLine, true)
	if err != nil {
		return schema.ProcessInfo{}, fmt.Errorf("%w: %v", schema.ErrInvalidCommand, err)
	}
	if len(tokens) == 0 {
		return schema.ProcessInfo{}, schema.ErrEmptyCommand
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return schema.ProcessInfo{}, schema.ErrProcessBusy
	}
	path, err := resolveProgram(tokens[0], workingDir)
	if err != nil {
		return schema.ProcessInfo{}, err
	}

	c.seq++
	p := &process{
		info: schema.ProcessInfo{
			Seq:     c.seq,
			Program: tokens[0],
			Args:    tokens[1:],
			Dir:     workingDir,
		},
		done:  make(chan struct{}),
		input: make(chan []byte, c.cfg.InputQueue),
	}
	log := logx.WithProcess(c.logger, p.info)

	cmd := exec.Command(path, tokens[1:]...)
	cmd.Args[0] = tokens[0]
	cmd.Dir = workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	env := c.cfg.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(filterEnv(env, "PWD"), "PWD="+workingDir)
	p.cmd = cmd
	c.current = p

	st, err := openStreams(cmd)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		log.Warn("childproc start failed", "dir", workingDir, "err", err)
		if st != nil {
			st.closeAll()
		}
		go c.finish(p, schema.ProcessExit{Seq: p.info.Seq, ExitCode: -1, Err: fmt.Errorf("%w: %v", schema.ErrProcessFailed, err)})
		return p.info, nil
	}
	p.info.PID = cmd.Process.Pid
	p.pgid = cmd.Process.Pid
	log = log.With("pid", p.info.PID)
	log.Debug("childproc started", "dir", workingDir, "args", len(p.info.Args))

	st.closeChildEnds()

	go c.writeInput(p, st.stdin, log)
	var wg sync.WaitGroup
	wg.Add(2)
	go c.readStream(&wg, p, st.stdout, schema.StreamStdout, log)
	go c.readStream(&wg, p, st.stderr, schema.StreamStderr, log)
	go c.wait(p, st, &wg, log)
	return p.info, nil
}

// Write queues data for the child's stdin. It never blocks; a full queue is
// reported as an error and the bytes are dropped.
func (c *Controller) Write(data []byte) error {
	p := c.live()
	if p == nil || len(data) == 0 {
		return nil
	}
	buf := append([]byte(nil), data...)
	p.inMu.Lock()
	defer p.inMu.Unlock()
	if p.inClosed {
		return nil
	}
	select {
	case p.input <- buf:
		return nil
	default:
		return errInputQueueFull
	}
}

// CloseInput closes the child's stdin after queued writes are flushed.
func (c *Controller) CloseInput() error {
	p := c.live()
	if p == nil {
		return nil
	}
	p.closeInput()
	return nil
}

// Interrupt kills the live process group with SIGKILL. Only the call that
// performs the kill returns true.
func (c *Controller) Interrupt() bool {
	p := c.live()
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	if !p.killed.CompareAndSwap(false, true) {
		return false
	}
	if err := unix.Kill(-p.pgid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			p.killed.Store(false)
			return false
		}
		if err := p.cmd.Process.Kill(); err != nil {
			c.logger.Debug("childproc kill failed", "pid", p.info.PID, "err", err)
			p.killed.Store(false)
			return false
		}
	}
	c.logger.Debug("childproc killed", "pid", p.info.PID, "proc_seq", p.info.Seq)
	return true
}

// Live reports whether a process is running.
func (c *Controller) Live() bool {
	return c.live() != nil
}

func (c *Controller) live() *process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// wait reaps the child, then gives the readers DrainTimeout to reach EOF.
// Descendants that outlive the child keep the pipes open; their remaining
// output is cut off so the exit is not held hostage. The exit is reported
// only after both readers have returned.
func (c *Controller) wait(p *process, st *streams, wg *sync.WaitGroup, log pslog.Logger) {
	err := p.cmd.Wait()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	timer := time.NewTimer(c.cfg.DrainTimeout)
	select {
	case <-drained:
		timer.Stop()
	case <-timer.C:
		log.Debug("childproc output still open after exit", "drain_timeout", c.cfg.DrainTimeout)
		st.expire()
		<-drained
	}
	st.closeReaders()
	exit := schema.ProcessExit{Seq: p.info.Seq, Interrupted: p.killed.Load()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit.ExitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				exit.Signaled = true
			}
		} else {
			exit.ExitCode = -1
			exit.Err = fmt.Errorf("%w: %v", schema.ErrProcessFailed, err)
		}
	}
	log.Debug("childproc exited", "exit_code", exit.ExitCode, "signaled", exit.Signaled, "interrupted", exit.Interrupted)
	c.finish(p, exit)
}

// finish clears the live process before notifying, so the observer sees a
// controller with no process live.
func (c *Controller) finish(p *process, exit schema.ProcessExit) {
	p.exited.Do(func() {
		c.mu.Lock()
		if c.current == p {
			c.current = nil
		}
		c.mu.Unlock()
		close(p.done)
		p.closeInput()
		if c.observer != nil {
			c.observer.OnProcessExit(exit)
		}
	})
}

func (p *process) closeInput() {
	p.inMu.Lock()
	defer p.inMu.Unlock()
	if p.inClosed {
		return
	}
	p.inClosed = true
	close(p.input)
}

// resolveProgram finds name on PATH. Names containing a slash are resolved
// against dir and must be executable regular files.
func resolveProgram(name, dir string) (string, error) {
	notFound := fmt.Errorf("%s: %w", name, schema.ErrCommandNotFound)
	if name == "" {
		return "", notFound
	}
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			return "", notFound
		}
		return path, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", notFound
	}
	return path, nil
}

func filterEnv(env []string, key string) []string {
	if len(env) == 0 {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
