// Package security validates the file paths that reach the grid readers
// from configuration, the HTTP API and the command line.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path leaves the directory it must stay in.
var ErrPathEscape = errors.New("path escapes its directory")

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// following symlinks on both sides. safeDir must exist; filePath need not,
// in which case its deepest existing parent is resolved instead.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonical(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if escapes(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, filePath, safeDir)
	}
	return nil
}

// canonical resolves symlinks in p, or in its deepest existing parent when
// p does not exist, so a new file under a symlinked directory is judged by
// where it would really land.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rel)
		}
		if filepath.Dir(dir) == dir {
			return p
		}
	}
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// ValidatePathWithinAllowedDirs checks that filePath is inside at least
// one of allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateOutputPath checks a path that rendered output will be written
// to. It must be inside the working directory, the temp directory or one
// of extraDirs. Extra directories that do not exist are ignored.
func ValidateOutputPath(filePath string, extraDirs ...string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	allowed := []string{os.TempDir(), cwd}
	for _, d := range extraDirs {
		if d == "" {
			continue
		}
		if _, err := os.Stat(d); err == nil {
			allowed = append(allowed, d)
		}
	}
	return ValidatePathWithinAllowedDirs(filePath, allowed)
}

// ValidateRelativePath rejects a relative configuration path that climbs
// out of the directory it is resolved against. Absolute paths are an
// explicit choice and are accepted.
func ValidateRelativePath(p string) error {
	if p == "" || filepath.IsAbs(p) {
		return nil
	}
	if escapes(filepath.Clean(p)) {
		return fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return nil
}

// JoinWithin joins a caller-supplied name onto dir and rejects names that
// would leave it. The check is lexical, so it works for any FileSystem.
func JoinWithin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if filepath.IsAbs(name) || escapes(filepath.Clean(name)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return filepath.Join(dir, name), nil
}

// SanitizeFilename turns an arbitrary identifier into a safe file name
// of ASCII letters, digits, dot, underscore and dash. Runs of other
// characters collapse to one underscore and the result is capped at 128
// bytes. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
