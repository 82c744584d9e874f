//go:build windows

package diskspace

import (
	"os"

	"golang.org/x/sys/windows"
)

func statfs(dir string) (available, total int64, ok bool) {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, 0, false
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return 0, 0, false
	}
	return int64(freeBytesAvailable), int64(totalBytes), true
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
