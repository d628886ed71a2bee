package payloadextract

import (
	"io"
)

// payloadMagic is the 4-byte ASCII prefix of every payload.bin.
const payloadMagic = "CrAU"

// supportedVersion is the only payload format version this core handles.
const supportedVersion = 2

// Source is the random-access byte source the core reads payloads from.
// A caller supplies anything satisfying it: an *os.File, the zip-member
// reader in zipsource.go, or the HTTP range reader in httprange.go.
type Source interface {
	io.Reader
	io.Seeker
}

// Frame is the result of parsing a payload's fixed header: the manifest
// and metadata-signature blobs, plus the data offset every operation's
// data_offset field is relative to.
type Frame struct {
	Version           uint64
	ManifestBytes     []byte
	MetadataSignature []byte
	DataOffset        int64
}

// readFrame reads magic, version, manifest length, signature length, the
// manifest blob, and the signature blob from src. src's position on return
// is exactly DataOffset.
func readFrame(src Source) (*Frame, error) {
	hdr := make([]byte, 4+8+8+4)
	if _, err := io.ReadFull(src, hdr); err != nil {
		return nil, wrapFormat("truncated payload header", err)
	}

	if string(hdr[0:4]) != payloadMagic {
		return nil, badFormat("bad magic")
	}

	version, err := u64be(hdr[4:12])
	if err != nil {
		return nil, err
	}
	if version != supportedVersion {
		return nil, badFormat("unsupported format version")
	}

	manifestLen, err := u64be(hdr[12:20])
	if err != nil {
		return nil, err
	}
	sigLen, err := u32be(hdr[20:24])
	if err != nil {
		return nil, err
	}

	manifest := make([]byte, manifestLen)
	if _, err := io.ReadFull(src, manifest); err != nil {
		return nil, wrapFormat("truncated manifest blob", err)
	}

	sig := make([]byte, sigLen)
	if _, err := io.ReadFull(src, sig); err != nil {
		return nil, wrapFormat("truncated metadata signature blob", err)
	}

	dataOffset, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, &IOError{Op: "seek after header", Cause: err}
	}

	return &Frame{
		Version:           version,
		ManifestBytes:     manifest,
		MetadataSignature: sig,
		DataOffset:        dataOffset,
	}, nil
}
