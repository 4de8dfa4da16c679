package schema

import "strings"

// ValidateOwnerID ensures an owner id matches [a-z0-9._-] with no normalization.
// Owner ids name persisted history files, so anything else is rejected.
func ValidateOwnerID(owner OwnerID) error {
	raw := string(owner)
	if raw == "" || raw == "." || raw == ".." {
		return ErrInvalidOwner
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidOwner
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidOwner
	}
	return nil
}
