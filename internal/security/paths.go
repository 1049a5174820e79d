// Package security guards the file names the CLI derives from its inputs.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename turns an arbitrary string into a file name made of
// ASCII letters, digits, dot, underscore and dash. Runs of other characters
// become a single underscore. Returns "unknown" for an empty result.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// JoinWithin joins name onto dir and fails if the result would land
// outside dir. Symlinks in existing parents are resolved first.
func JoinWithin(dir, name string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	path := filepath.Join(absDir, name)

	rel, err := filepath.Rel(canonical(absDir), canonical(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", name, dir)
	}
	return path, nil
}

// canonical resolves symlinks in the longest existing prefix of path.
func canonical(path string) string {
	for p := path; ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			rest, _ := filepath.Rel(p, path)
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(p) == p {
			return path
		}
	}
}
