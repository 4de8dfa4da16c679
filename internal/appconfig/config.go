package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/shellpane/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int         `mapstructure:"config_version" yaml:"config_version"`
	Shell         ShellConfig `mapstructure:"shell" yaml:"shell"`
	State         StateConfig `mapstructure:"state" yaml:"state"`
	SSH           SSHConfig   `mapstructure:"ssh" yaml:"ssh"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ShellConfig controls session behavior.
type ShellConfig struct {
	PromptSuffix        string `mapstructure:"prompt_suffix" yaml:"prompt_suffix"`
	WorkingDir          string `mapstructure:"working_dir" yaml:"working_dir"`
	HistoryMax          int    `mapstructure:"history_max" yaml:"history_max"`
	ScrollbackMaxChunks int    `mapstructure:"scrollback_max_chunks" yaml:"scrollback_max_chunks"`
	InterruptMarker     string `mapstructure:"interrupt_marker" yaml:"interrupt_marker"`
}

// StateConfig controls on-disk state.
type StateConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`
	PersistHistory bool   `mapstructure:"persist_history" yaml:"persist_history"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	TOTPSecret         string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Shell: ShellConfig{
			PromptSuffix:        schema.DefaultPromptSuffix,
			WorkingDir:          "",
			HistoryMax:          schema.DefaultHistoryMax,
			ScrollbackMaxChunks: 0,
			InterruptMarker:     schema.DefaultInterruptMarker,
		},
		State: StateConfig{
			Dir:            filepath.Join(home, ".shellpane", "state"),
			PersistHistory: false,
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".shellpane", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
			TOTPSecret:         "",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shellpane", "config.yaml"), nil
}

// SessionConfig maps the shell and state sections onto session settings.
func (c Config) SessionConfig() schema.SessionConfig {
	return schema.SessionConfig{
		WorkingDir:          c.Shell.WorkingDir,
		PromptSuffix:        c.Shell.PromptSuffix,
		HistoryMax:          c.Shell.HistoryMax,
		ScrollbackMaxChunks: c.Shell.ScrollbackMaxChunks,
		InterruptMarker:     c.Shell.InterruptMarker,
		StateDir:            c.State.Dir,
		PersistHistory:      c.State.PersistHistory,
	}
}

// HistoryDir returns the directory holding persisted per-owner history.
func (c Config) HistoryDir() string {
	return filepath.Join(c.State.Dir, "history")
}
