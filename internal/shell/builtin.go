package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ChangeDir resolves target against cwd and verifies that it is a
// directory. On success it returns the new directory with an empty output
// and exit code 0; navigation failures are reported in the Result with exit
// code 1 and the old cwd. An error is returned only when the filesystem
// check itself fails unexpectedly.
func ChangeDir(root, cwd, target string) (Result, error) {
	resolved := resolve(root, cwd, target)

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return Result{
				Output:   fmt.Sprintf("cd: %s: No such file or directory", target),
				ExitCode: 1,
				Cwd:      cwd,
			}, nil
		}
		return Result{Cwd: cwd}, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return Result{
			Output:   fmt.Sprintf("cd: %s: Not a directory", target),
			ExitCode: 1,
			Cwd:      cwd,
		}, nil
	}
	return Result{Cwd: resolved}, nil
}

// PrintDir returns cwd verbatim.
func PrintDir(cwd string) Result {
	return Result{Output: cwd, Cwd: cwd}
}

// resolve maps a cd target to an absolute path. Home and previous-directory
// shorthands all point at the workspace root; no OLDPWD is kept.
func resolve(root, cwd, target string) string {
	switch target {
	case "", "~", "$HOME", "-":
		return root
	}
	if strings.HasPrefix(target, "~/") {
		return filepath.Join(root, target[2:])
	}
	if strings.HasPrefix(target, "$HOME/") {
		return filepath.Join(root, target[len("$HOME/"):])
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(cwd, target)
}
