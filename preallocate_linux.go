//go:build linux

package payloadextract

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for f. On Linux this uses fallocate
// (mode 0), so the filesystem allocates real blocks for the whole image up
// front and the file is not left sparse, rather than relying on incidental
// seek-past-EOF zero-fill as each operation happens to land. If fallocate
// returns any error (e.g. a filesystem that does not support it), it falls
// back to a plain truncate, which may leave the file sparse.
func preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		return f.Truncate(size)
	}
	return nil
}
