// Package security guards file paths built from host-supplied identifiers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for paths that resolve outside their directory.
var ErrPathEscape = errors.New("path escapes directory")

// ValidatePathWithinDirectory returns an error unless path resolves to a
// location inside dir. Symlinks are resolved for both, including symlinked
// parents of a path that does not exist yet.
func ValidatePathWithinDirectory(path, dir string) error {
	canonicalPath, err := canonical(path)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathEscape, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, path, dir)
	}
	return nil
}

// canonical returns the absolute, symlink-free form of path. For a path
// that does not exist, the nearest existing ancestor is resolved and the
// rest appended.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for parent := filepath.Dir(abs); ; parent = filepath.Dir(parent) {
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(parent) == parent {
			return abs, nil
		}
	}
}

// SanitizeFilename maps an area id or other identifier to a safe file name:
// runs of anything but ASCII letters, digits, '.', '_' and '-' become one
// underscore, leading and trailing dots and underscores are dropped, and the
// result is capped at 128 bytes. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		safe := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-'
		if !safe {
			if !pending {
				b.WriteByte('_')
				pending = true
			}
			continue
		}
		b.WriteRune(r)
		pending = false
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
