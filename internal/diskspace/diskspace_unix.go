//go:build !windows

package diskspace

import (
	"os"

	"golang.org/x/sys/unix"
)

func statfs(dir string) (available, total int64, ok bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, 0, false
	}
	// Bavail is what an unprivileged user can allocate
	return int64(stat.Bavail) * int64(stat.Bsize), int64(stat.Blocks) * int64(stat.Bsize), true
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
