// Package anchor resolves the directory the bootstrap is anchored to.
package anchor

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolve returns an absolute root. A non-empty override is made absolute
// against the working directory; otherwise the root is the directory of the
// running executable with symlinks resolved.
func Resolve(override string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("failed to resolve root %q: %w", override, err)
		}
		return abs, nil
	}
	return executableDir(os.Executable)
}

func executableDir(executable func() (string, error)) (string, error) {
	exe, err := executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable %q: %w", exe, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}
