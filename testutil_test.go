package payloadextract

import "fmt"

// memBuffer is a growable in-memory buffer implementing io.WriterAt and
// io.ReaderAt, standing in for an *os.File across operation/partition/run
// tests without touching the filesystem.
type memBuffer struct {
	data []byte
}

func (m *memBuffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func (m *memBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("offset %d out of range (len=%d)", off, len(m.data))
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("short read: wanted %d, got %d", len(p), n)
	}
	return n, nil
}
