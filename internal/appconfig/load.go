package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var timeNow = time.Now

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("shell.prompt_suffix", cfg.Shell.PromptSuffix)
	v.SetDefault("shell.working_dir", cfg.Shell.WorkingDir)
	v.SetDefault("shell.history_max", cfg.Shell.HistoryMax)
	v.SetDefault("shell.scrollback_max_chunks", cfg.Shell.ScrollbackMaxChunks)
	v.SetDefault("shell.interrupt_marker", cfg.Shell.InterruptMarker)
	v.SetDefault("state.dir", cfg.State.Dir)
	v.SetDefault("state.persist_history", cfg.State.PersistHistory)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.totp_secret", cfg.SSH.TOTPSecret)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateShellConfig(cfg.Shell); err != nil {
		return Config{}, err
	}
	if err := validateSSHConfig(cfg.SSH); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateShellConfig(cfg ShellConfig) error {
	if strings.ContainsAny(cfg.PromptSuffix, "\r\n") {
		return fmt.Errorf("shell.prompt_suffix must be a single line")
	}
	if cfg.HistoryMax < 0 {
		return fmt.Errorf("shell.history_max must not be negative")
	}
	if cfg.ScrollbackMaxChunks < 0 {
		return fmt.Errorf("shell.scrollback_max_chunks must not be negative")
	}
	if cfg.WorkingDir != "" && !filepath.IsAbs(cfg.WorkingDir) {
		return fmt.Errorf("shell.working_dir must be an absolute path")
	}
	return nil
}

func validateSSHConfig(cfg SSHConfig) error {
	secret := strings.TrimSpace(cfg.TOTPSecret)
	if secret == "" {
		return nil
	}
	// Generating a code exercises the base32 decoding of the secret.
	if _, err := totp.GenerateCode(secret, timeNow()); err != nil {
		return fmt.Errorf("ssh.totp_secret is invalid: %w", err)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Shell.WorkingDir = expandEnv(cfg.Shell.WorkingDir)
	cfg.State.Dir = expandEnv(cfg.State.Dir)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
	cfg.SSH.TOTPSecret = expandEnv(cfg.SSH.TOTPSecret)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
