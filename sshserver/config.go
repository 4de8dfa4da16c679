package sshserver

// Config defines SSH server settings.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	// TOTPSecret enables a keyboard-interactive verification code after
	// public key authentication. Empty disables the second factor.
	TOTPSecret string
	NoColor    bool
}
