// Package pathutil holds the path checks shared by the run directory and
// the handshake scratch directory.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a path to .../<parent>/<basename> for logs and tool
// output. "/home/user/.cosim/config.yaml" becomes ".../.cosim/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Confine joins name onto dir and returns the result only if it still lies
// inside dir once symlinks in the existing part of both paths are resolved.
// The target itself need not exist.
func Confine(dir, name string) (string, error) {
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("%q contains a null byte", name)
	}
	root, err := resolve(dir)
	if err != nil {
		return "", err
	}
	target, err := resolve(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%q escapes %s", name, RedactPath(dir))
	}
	return filepath.Join(dir, name), nil
}

// resolve makes path absolute and evaluates symlinks on its deepest
// existing ancestor, re-appending the missing tail.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", RedactPath(path), err)
	}
	var tail []string
	for current := abs; ; current = filepath.Dir(current) {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if filepath.Dir(current) == current {
			return "", fmt.Errorf("no existing ancestor for %s", RedactPath(abs))
		}
		tail = append(tail, filepath.Base(current))
	}
}

// CheckCreatable reports whether path exists as a directory or could be
// created with os.MkdirAll: its deepest existing ancestor must be a directory.
func CheckCreatable(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}

	for current := absPath; ; current = filepath.Dir(current) {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%q is not a directory", RedactPath(current))
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("cannot stat %q: %w", RedactPath(current), err)
		}
		if filepath.Dir(current) == current {
			return fmt.Errorf("no existing ancestor for %q", RedactPath(absPath))
		}
	}
}
