//go:build !linux

package payloadextract

import "os"

// preallocate reserves size bytes for f via truncate; fallocate-style
// reservation is Linux-specific and not attempted on other platforms.
func preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	return f.Truncate(size)
}
