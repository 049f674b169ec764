// Package security guards file names and paths derived from request input.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 96

// WithinDir reports an error unless path resolves inside dir. Symlinks in
// existing components are resolved first so a link cannot carry the path out.
func WithinDir(path, dir string) error {
	absDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	absPath, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// canonical returns the absolute form of p with symlinks resolved in the
// longest prefix of p that exists.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rest := ""
	for cur := abs; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-' and folds
// every other run of characters into one underscore. Empty results become
// "unnamed".
func SanitizeFilename(s string) string {
	var b strings.Builder
	folded := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			folded = false
		case !folded:
			b.WriteByte('_')
			folded = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}
