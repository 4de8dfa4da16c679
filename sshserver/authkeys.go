package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is a parsed authorized_keys file.
type AuthorizedKeys struct {
	keys map[string]string
}

// ParseAuthorizedKeys parses authorized_keys content. Blank lines and
// comments are skipped; options before the key type are accepted and
// ignored.
func ParseAuthorizedKeys(data []byte) (*AuthorizedKeys, error) {
	out := &AuthorizedKeys{keys: make(map[string]string)}
	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, comment, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("authorized_keys line %d: %w", i+1, err)
		}
		out.keys[string(key.Marshal())] = comment
	}
	return out, nil
}

// LoadAuthorizedKeys reads and parses an authorized_keys file.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("authorized keys path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	return ParseAuthorizedKeys(data)
}

// Len returns the number of distinct keys.
func (a *AuthorizedKeys) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Allows reports whether key is listed, with its comment.
func (a *AuthorizedKeys) Allows(key ssh.PublicKey) (string, bool) {
	if a == nil || key == nil {
		return "", false
	}
	comment, ok := a.keys[string(key.Marshal())]
	return comment, ok
}
