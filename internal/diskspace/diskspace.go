// Package diskspace checks free space on the filesystem that will receive a
// download before any bytes are written.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s available",
		e.Path, humanize.IBytes(uint64(e.RequiredBytes)), humanize.IBytes(uint64(e.AvailableBytes)))
}

// CheckAvailableSpace returns an InsufficientSpaceError when the filesystem
// holding targetPath has less than requiredBytes*safetyMargin free.
// targetPath itself need not exist. When free space cannot be determined
// the check passes and the write is left to fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	if requiredBytes <= 0 {
		return nil
	}
	if safetyMargin < 1 {
		safetyMargin = 1
	}

	available, _, ok := statfs(existingDir(targetPath))
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// Usage describes the filesystem holding a path.
type Usage struct {
	FreeBytes  int64 `json:"freeBytes"`
	TotalBytes int64 `json:"totalBytes"`
}

// GetUsage returns free and total bytes for the filesystem containing path.
// path may be a directory; it need not exist.
func GetUsage(path string) (Usage, error) {
	dir := path
	if !dirExists(dir) {
		dir = existingDir(path)
	}
	free, total, ok := statfs(dir)
	if !ok {
		return Usage{}, fmt.Errorf("cannot determine disk usage for %s", path)
	}
	return Usage{FreeBytes: free, TotalBytes: total}, nil
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var e *InsufficientSpaceError
	return errors.As(err, &e)
}

// existingDir walks up from the parent of path to the nearest directory
// that exists, since download parents are created after the check.
func existingDir(path string) string {
	dir := filepath.Dir(path)
	for {
		if dirExists(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
