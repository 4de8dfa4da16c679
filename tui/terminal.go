// Package tui draws a session on a character terminal and feeds it
// keystrokes decoded from the terminal's input stream.
package tui

import (
	"context"
	"errors"
	"io"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/internal/eventbus"
	"pkt.systems/shellpane/internal/logx"
	"pkt.systems/shellpane/schema"
)

// Window is a terminal size in cells.
type Window struct {
	Width  int
	Height int
}

// Options configures a Terminal.
type Options struct {
	In      io.Reader
	Out     io.Writer
	Session *core.Session
	// Events wakes the terminal for redraws. The payload is not replayed;
	// the terminal re-reads the session.
	Events  <-chan eventbus.Event
	Resize  <-chan Window
	Size    Window
	NoColor bool
	Logger  pslog.Logger
}

// Terminal renders one session and routes keys into it.
type Terminal struct {
	in      io.Reader
	session *core.Session
	screen  *screen
	events  <-chan eventbus.Event
	resize  <-chan Window
	theme   theme
	log     pslog.Logger

	width  int
	height int
}

// tailFactor sizes the chunk window read while following the bottom.
const tailFactor = 8

// New constructs a Terminal.
func New(opts Options) (*Terminal, error) {
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("terminal input and output are required")
	}
	if opts.Session == nil {
		return nil, errors.New("session is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	th := defaultTheme()
	if opts.NoColor {
		th = theme{}
	}
	t := &Terminal{
		in:      opts.In,
		session: opts.Session,
		screen:  newScreen(opts.Out),
		events:  opts.Events,
		resize:  opts.Resize,
		theme:   th,
		log:     logx.WithSession(logger, opts.Session.ID()),
	}
	t.SetSize(opts.Size.Width, opts.Size.Height)
	return t, nil
}

// SetSize updates the terminal dimensions, falling back to 80x24.
func (t *Terminal) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	t.width = width
	t.height = height
}

// Run draws the session until ctx is done, the input ends, the session is
// closed, or the user presses Ctrl+D on an empty prompt.
func (t *Terminal) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.screen.EnterAltScreen()
	defer t.screen.ExitAltScreen()

	t.render()
	t.log.Info("tui session start", "width", t.width, "height", t.height)

	keys := make(chan schema.KeyEvent, 16)
	go ReadKeys(t.in, keys)

	events := t.events
	for {
		dirty := false
		select {
		case <-ctx.Done():
			t.log.Info("tui exit", "reason", "context")
			return nil
		case k, ok := <-keys:
			if !ok {
				t.log.Info("tui exit", "reason", "input closed")
				return nil
			}
			exit, err := t.handleKey(ctx, k)
			if err != nil {
				return err
			}
			if exit {
				return nil
			}
			dirty = true
		case win, ok := <-t.resize:
			if !ok {
				t.resize = nil
				continue
			}
			t.SetSize(win.Width, win.Height)
			t.log.Debug("tui resize", "width", t.width, "height", t.height)
			dirty = true
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			dirty = true
			events = drain(events)
		}
		if dirty {
			t.render()
		}
	}
}

// drain consumes queued events so a burst of output costs one redraw.
func drain(events <-chan eventbus.Event) <-chan eventbus.Event {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return nil
			}
		default:
			return events
		}
	}
}

func (t *Terminal) handleKey(ctx context.Context, k schema.KeyEvent) (bool, error) {
	page := t.pageSize()
	switch {
	case k.Code == schema.KeyPageUp:
		t.session.Scroll(page, page)
		t.log.Trace("tui scroll", "delta", page)
		return false, nil
	case k.Code == schema.KeyPageDown:
		t.session.Scroll(-page, page)
		t.log.Trace("tui scroll", "delta", -page)
		return false, nil
	case k.IsCtrl('d'):
		info := t.session.Info()
		if info.State == schema.StateEditing && info.Input.Text == "" {
			t.log.Info("tui exit", "reason", "ctrl-d")
			return true, nil
		}
	}
	t.session.ResetScroll()
	if err := t.session.HandleKey(ctx, k); err != nil {
		if errors.Is(err, schema.ErrSessionClosed) {
			t.log.Info("tui exit", "reason", "session closed")
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (t *Terminal) pageSize() int {
	page := t.height - 1
	if page < 1 {
		page = 1
	}
	return page
}

func (t *Terminal) snapshot() view {
	info := t.session.Info()
	snap := t.session.Snapshot(t.height)
	if snap.AtBottom {
		snap = t.session.Snapshot(t.height * tailFactor)
	}
	return view{
		chunks:   snap.Chunks,
		atBottom: snap.AtBottom,
		state:    info.State,
		prompt:   info.Prompt,
		input:    info.Input,
	}
}

func (t *Terminal) render() {
	f := composeFrame(t.snapshot(), t.width, t.height, t.theme)
	if err := t.screen.Render(f); err != nil {
		t.log.Warn("tui render failed", "err", err)
	}
}
