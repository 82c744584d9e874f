//go:build !windows

package progress

import "os"

// enableANSIOnWindows is a no-op outside Windows.
func enableANSIOnWindows(f *os.File) {}
