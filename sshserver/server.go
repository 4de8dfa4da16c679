// Package sshserver serves one terminal session per SSH connection.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/internal/eventbus"
	"pkt.systems/shellpane/internal/logx"
	"pkt.systems/shellpane/schema"
	"pkt.systems/shellpane/tui"
)

// Server exposes terminal sessions over SSH.
type Server struct {
	Config   Config
	Listener net.Listener
	Manager  *core.Manager
	EventBus *eventbus.Bus
	logger   pslog.Logger
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Manager == nil {
		return errors.New("session manager is required for SSH")
	}
	if strings.TrimSpace(s.Config.AuthorizedKeysPath) == "" {
		return errors.New("authorized keys path is required for SSH")
	}
	keys, err := LoadAuthorizedKeys(s.Config.AuthorizedKeysPath)
	if err != nil {
		return err
	}
	s.logger.Info("ssh authorized keys loaded", "path", s.Config.AuthorizedKeysPath, "keys", keys.Len())

	hostKey, err := LoadHostKey(s.Config.HostKeyPath)
	if err != nil {
		return err
	}
	s.logger.Info("ssh host key ready", "path", s.Config.HostKeyPath, "fingerprint", hostKey.Fingerprint(), "created", hostKey.Created)

	server := &gliderssh.Server{
		Addr:             s.Config.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	if s.Config.TOTPSecret != "" {
		server.KeyboardInteractiveHandler = s.handleKeyboardInteractive
	}
	server.AddHostKey(hostKey.Signer)

	listener := s.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", s.Config.Addr)
		if err != nil {
			return fmt.Errorf("ssh listen: %w", err)
		}
	}
	s.logger.Info("ssh listening", "addr", listener.Addr().String(), "totp", s.Config.TOTPSecret != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	user := ctx.User()
	if user == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user", "remote", remote, "fingerprint", fingerprint)
		return false
	}
	log = log.With("user", user, "remote", remote, "fingerprint", fingerprint)
	// Re-read on every attempt so key edits apply without a restart.
	keys, err := LoadAuthorizedKeys(s.Config.AuthorizedKeysPath)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	comment, ok := keys.Allows(key)
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	if s.Config.TOTPSecret != "" {
		ctx.SetValue(loginPubKeyOK, true)
		log.Info("ssh pubkey accepted", "comment", comment, "next", "totp")
		return false
	}
	log.Info("ssh pubkey accepted", "comment", comment)
	return true
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx))
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if !validateTOTP(s.Config.TOTPSecret, answers[0], time.Now()) {
		log.Warn("ssh totp rejected", "reason", "invalid code")
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func validateTOTP(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return err == nil && ok
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	owner := schema.OwnerID(sess.User())
	remote := sess.RemoteAddr().String()
	log = log.With("owner", owner, "remote", remote)
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ctx := logx.ContextWithOwnerLogger(sess.Context(), log, owner)

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	session, err := s.Manager.Create(ctx, core.CreateRequest{Owner: owner})
	if err != nil {
		log.Warn("ssh session rejected", "reason", "create failed", "err", err)
		_, _ = io.WriteString(sess, fmt.Sprintf("cannot start session: %v\r\n", err))
		_ = sess.Exit(1)
		return
	}
	termLog := log
	log = logx.WithSession(log, session.ID())
	ctx = logx.ContextWithSessionLogger(ctx, log, owner, session.ID())
	defer func() {
		if err := s.Manager.Close(context.WithoutCancel(ctx), session.ID()); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
			log.Warn("ssh session close failed", "err", err)
		}
	}()

	log.Info("ssh session opened", "term", pty.Term, "width", pty.Window.Width, "height", pty.Window.Height)
	var events <-chan eventbus.Event
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(session.ID())
		defer unsubscribe()
	}

	resize := make(chan tui.Window, 1)
	go forwardWindows(ctx, winCh, resize)

	term, err := tui.New(tui.Options{
		In:      sess,
		Out:     sess,
		Session: session,
		Events:  events,
		Resize:  resize,
		Size:    tui.Window{Width: pty.Window.Width, Height: pty.Window.Height},
		NoColor: s.Config.NoColor,
		Logger:  termLog,
	})
	if err != nil {
		log.Warn("ssh terminal failed", "err", err)
		_ = sess.Exit(1)
		return
	}
	if err := term.Run(ctx); err != nil {
		log.Warn("ssh terminal stopped", "err", err)
	}
	_ = sess.Exit(0)
	log.Info("ssh session closed", "term", pty.Term)
}

// forwardWindows converts window-change requests, keeping only the newest
// size when the terminal is busy.
func forwardWindows(ctx context.Context, in <-chan gliderssh.Window, out chan tui.Window) {
	for {
		select {
		case <-ctx.Done():
			return
		case win, ok := <-in:
			if !ok {
				return
			}
			next := tui.Window{Width: win.Width, Height: win.Height}
			select {
			case out <- next:
			default:
				select {
				case <-out:
				default:
				}
				out <- next
			}
		}
	}
}
