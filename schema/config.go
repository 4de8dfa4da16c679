package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SessionConfig defines defaults and limits for terminal sessions.
type SessionConfig struct {
	// WorkingDir is the initial working directory of new sessions.
	WorkingDir string
	// PromptSuffix follows the working directory in the prompt.
	PromptSuffix string
	// HistoryMax bounds the number of history entries kept per session.
	HistoryMax int
	// ScrollbackMaxChunks bounds the scrollback; 0 keeps everything.
	ScrollbackMaxChunks int
	// InterruptMarker is appended when the user interrupts a process.
	InterruptMarker string
	// StateDir holds persisted history when PersistHistory is set.
	StateDir       string
	PersistHistory bool
}

const (
	// DefaultPromptSuffix is the prompt suffix after the working directory.
	DefaultPromptSuffix = "$ "
	// DefaultHistoryMax is the default per-session history limit.
	DefaultHistoryMax = 1000
	// DefaultInterruptMarker is the default interrupt marker text.
	DefaultInterruptMarker = "^C"
)

// NormalizeSessionConfig applies defaults and validates the config.
func NormalizeSessionConfig(cfg SessionConfig) (SessionConfig, error) {
	if cfg.WorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return SessionConfig{}, err
			}
			wd = home
		}
		cfg.WorkingDir = wd
	}
	if !filepath.IsAbs(cfg.WorkingDir) {
		abs, err := filepath.Abs(cfg.WorkingDir)
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.WorkingDir = abs
	}
	cfg.WorkingDir = filepath.Clean(cfg.WorkingDir)
	if cfg.PromptSuffix == "" {
		cfg.PromptSuffix = DefaultPromptSuffix
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	if cfg.ScrollbackMaxChunks < 0 {
		return SessionConfig{}, errors.New("scrollback max chunks must not be negative")
	}
	if cfg.InterruptMarker == "" {
		cfg.InterruptMarker = DefaultInterruptMarker
	}
	if strings.ContainsAny(cfg.PromptSuffix, "\r\n") {
		return SessionConfig{}, errors.New("prompt suffix must be a single line")
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return SessionConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".shellpane", "state")
	}
	return cfg, nil
}
