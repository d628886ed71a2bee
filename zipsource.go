package payloadextract

import (
	"archive/zip"
	"io"
)

// payloadMember is the exact name a zip input source must carry the
// payload under.
const payloadMember = "payload.bin"

// ZipSource is a Source (io.Reader + io.Seeker) over the payload.bin
// member of a zip archive. It reuses a single decompressing stream across
// sequential reads (the operation engine's access pattern is mostly
// forward scans through the data region), skipping ahead in it for forward
// seeks, and only re-opens the member when a read would otherwise require
// rewinding.
type ZipSource struct {
	zf *zip.File

	pos int64 // logical position callers believe they're at

	stream   io.ReadCloser
	streamAt int64 // logical position the stream is currently positioned at
}

// NewZipSource opens the zip.Reader described by r/size and locates a
// member named exactly "payload.bin". It fails with NotFound if no such
// member exists.
func NewZipSource(r io.ReaderAt, size int64) (*ZipSource, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, wrapFormat("not a valid zip archive", err)
	}

	var zf *zip.File
	for _, f := range zr.File {
		if f.Name == payloadMember {
			zf = f
			break
		}
	}
	if zf == nil {
		return nil, &NotFound{What: payloadMember + " in archive"}
	}

	return &ZipSource{zf: zf}, nil
}

func (z *ZipSource) Read(p []byte) (int, error) {
	if z.stream != nil && z.pos > z.streamAt {
		n, err := io.CopyN(io.Discard, z.stream, z.pos-z.streamAt)
		z.streamAt += n
		if err != nil && err != io.EOF {
			return 0, &IOError{Op: "skip forward in zip member", Cause: err}
		}
	}
	if z.stream == nil || z.streamAt != z.pos {
		if err := z.reopenAt(z.pos); err != nil {
			return 0, err
		}
	}
	n, err := z.stream.Read(p)
	z.pos += int64(n)
	z.streamAt += int64(n)
	return n, err
}

func (z *ZipSource) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = z.pos + offset
	case io.SeekEnd:
		target = int64(z.zf.UncompressedSize64) + offset
	default:
		return 0, &IOError{Op: "seek", Cause: errUnsupportedWhence}
	}
	if target < 0 {
		return 0, &IOError{Op: "seek", Cause: errNegativeSeek}
	}
	z.pos = target
	return z.pos, nil
}

func (z *ZipSource) Close() error {
	if z.stream != nil {
		return z.stream.Close()
	}
	return nil
}

func (z *ZipSource) reopenAt(pos int64) error {
	if z.stream != nil {
		z.stream.Close()
		z.stream = nil
	}
	rc, err := z.zf.Open()
	if err != nil {
		return &IOError{Op: "open zip member", Cause: err}
	}
	if _, err := io.CopyN(io.Discard, rc, pos); err != nil && err != io.EOF {
		rc.Close()
		return &IOError{Op: "skip to zip member offset", Cause: err}
	}
	z.stream = rc
	z.streamAt = pos
	return nil
}
