package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/anmitsu/go-shlex"
	"golang.org/x/sys/unix"

	"pkt.systems/shellpane/schema"
)

const builtinCd = "cd"

// splitCommandLine tokenizes a command line with POSIX shell quoting rules.
func splitCommandLine(line string) ([]string, error) {
	tokens, err := shlex.Split(line, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidCommand, err)
	}
	return tokens, nil
}

// resolveDir resolves a cd argument against cwd. An empty argument and "~"
// mean the home directory.
func resolveDir(cwd, arg string) (string, error) {
	switch {
	case arg == "" || arg == "~":
		return os.UserHomeDir()
	case strings.HasPrefix(arg, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, arg[2:]), nil
	case filepath.IsAbs(arg):
		return filepath.Clean(arg), nil
	default:
		return filepath.Join(cwd, arg), nil
	}
}

// changeDir validates a cd target and returns the new working directory.
// The process working directory is never changed.
func changeDir(cwd string, args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("%s: too many arguments", builtinCd)
	}
	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	target, err := resolveDir(cwd, arg)
	if err != nil {
		return "", NewShellError(ShellErrorPathNotFound, builtinCd, arg, err)
	}
	shown := arg
	if shown == "" {
		shown = target
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", NewShellError(ShellErrorPermissionDenied, builtinCd, shown, err)
		}
		return "", NewShellError(ShellErrorPathNotFound, builtinCd, shown, err)
	}
	if !info.IsDir() {
		return "", NewShellError(ShellErrorNotDirectory, builtinCd, shown, nil)
	}
	if err := unix.Access(target, unix.X_OK); err != nil {
		return "", NewShellError(ShellErrorPermissionDenied, builtinCd, shown, err)
	}
	return target, nil
}
