package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entry names that resolve outside the target.
var ErrUnsafePath = errors.New("entry path escapes target directory")

// CanonicalDir returns the absolute, symlink-resolved form of an existing
// directory.
func CanonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	return filepath.Clean(resolved), nil
}

// ContainedPath joins an archive entry name onto root (already canonical)
// and returns the canonical output path. The result is root itself or a
// descendant of it; anything else yields ErrUnsafePath.
//
// Example:
//
//	ContainedPath("/out", "dir/b.txt")      // "/out/dir/b.txt"
//	ContainedPath("/out", "../../evil.txt") // ErrUnsafePath
func ContainedPath(root, name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q contains null byte", ErrUnsafePath, name)
	}

	name = strings.ReplaceAll(name, `\`, "/")
	candidate := filepath.Join(root, filepath.FromSlash(name))

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}

	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return resolved, nil
}

// within reports whether path equals base or lies beneath it.
func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// resolveExisting canonicalizes the longest existing prefix of path and
// re-appends the rest, so symlinked directories already on disk are seen
// through.
func resolveExisting(path string) (string, error) {
	path = filepath.Clean(path)
	var rest []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", fmt.Errorf("failed to resolve %s: %w", cur, err)
			}
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}
