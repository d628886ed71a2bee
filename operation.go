package payloadextract

import (
	"bytes"
	"crypto/sha256"
	"io"

	"github.com/otapack/payload-extract/internal/manifest"
)

// Operation type codes. 8 is a historical alias for 3; 10 shares dispatch
// with 6 because the inner codec is carried inside the BSDF2 patch header
// rather than the outer operation type.
const (
	opReplace      = 0
	opReplaceBZ    = 1
	opZero         = 2
	opReplaceXZ    = 3
	opReplaceZstd  = 4
	opSourceCopy   = 5
	opSourceBSDiff = 6
	opReplaceXZAlt = 8
	opBrotliBSDiff = 10
)

// OldImage is the differential-mode source image: a plain random-access
// reader over the previously installed partition. nil when none is open.
type OldImage = io.ReaderAt

// Output is the partition's destination image: scatter writes land via
// WriteAt, one position-independent call per extent, instead of carrying
// cursor state between operations (os.File satisfies this directly).
type Output = io.WriterAt

// applyOperation executes one InstallOperation against payload: fetch the
// operation's payload bytes, verify the hash if present, then dispatch by
// type.
func applyOperation(op manifest.InstallOperation, payload Source, out Output, old OldImage, dataOffset int64, blockSize uint32) error {
	raw, err := fetchOperationData(op, payload, dataOffset)
	if err != nil {
		return err
	}

	if len(op.DataSHA256) > 0 {
		sum := sha256.Sum256(raw)
		if !bytes.Equal(sum[:], op.DataSHA256) {
			return &IntegrityError{OpType: op.Type, DataOffset: op.DataOffset}
		}
	}

	switch op.Type {
	case opReplace:
		return writeAt(out, raw, firstDstOffset(op, blockSize))
	case opReplaceBZ:
		return decodeAndWrite(out, BZ2, raw, firstDstOffset(op, blockSize))
	case opZero:
		return writeZero(out, op.DstExtents, blockSize)
	case opReplaceXZ, opReplaceXZAlt:
		return decodeAndWrite(out, XZLZMA, raw, firstDstOffset(op, blockSize))
	case opReplaceZstd:
		return decodeAndWrite(out, Zstd, raw, firstDstOffset(op, blockSize))
	case opSourceCopy:
		return applySourceCopy(op, out, old, blockSize)
	case opSourceBSDiff, opBrotliBSDiff:
		return applySourceBSDiff(op, raw, out, old, blockSize)
	default:
		return &UnsupportedOperation{Code: op.Type}
	}
}

// fetchOperationData reads exactly op.DataLength bytes starting at
// dataOffset+op.DataOffset.
func fetchOperationData(op manifest.InstallOperation, payload Source, dataOffset int64) ([]byte, error) {
	abs := dataOffset + int64(op.DataOffset)
	if _, err := payload.Seek(abs, io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek to operation data", Cause: err}
	}
	buf := make([]byte, op.DataLength)
	if _, err := io.ReadFull(payload, buf); err != nil {
		return nil, &IOError{Op: "read operation data", Cause: err}
	}
	return buf, nil
}

func firstDstOffset(op manifest.InstallOperation, blockSize uint32) int64 {
	if len(op.DstExtents) == 0 {
		return 0
	}
	return int64(op.DstExtents[0].StartBlock) * int64(blockSize)
}

func decodeAndWrite(out Output, codec Codec, raw []byte, offset int64) error {
	data, err := decompress(codec, raw)
	if err != nil {
		return err
	}
	return writeAt(out, data, offset)
}

func writeAt(out Output, data []byte, offset int64) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := out.WriteAt(data, offset); err != nil {
		return &IOError{Op: "write destination extent", Cause: err}
	}
	return nil
}

func writeZero(out Output, extents []manifest.Extent, blockSize uint32) error {
	for _, ext := range extents {
		n := int64(ext.NumBlocks) * int64(blockSize)
		if n == 0 {
			continue
		}
		if err := writeAt(out, make([]byte, n), int64(ext.StartBlock)*int64(blockSize)); err != nil {
			return err
		}
	}
	return nil
}

// applySourceCopy seeks the output to dst_extents[0] once, then appends
// each source extent's bytes in order with no further reseeking — unlike
// BSDIFF's per-extent scatter, SOURCE_COPY writes its whole source run as
// one contiguous stream starting at the first destination extent.
func applySourceCopy(op manifest.InstallOperation, out Output, old OldImage, blockSize uint32) error {
	if old == nil {
		return &MissingSource{OpType: op.Type}
	}
	offset := firstDstOffset(op, blockSize)
	for _, ext := range op.SrcExtents {
		n := int64(ext.NumBlocks) * int64(blockSize)
		if n == 0 {
			continue
		}
		buf := make([]byte, n)
		if _, err := old.ReadAt(buf, int64(ext.StartBlock)*int64(blockSize)); err != nil {
			return &IOError{Op: "read old-image extent", Cause: err}
		}
		if err := writeAt(out, buf, offset); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// applySourceBSDiff assembles the source buffer, parses raw as a BSDF2
// patch, applies it, then scatters the result.
func applySourceBSDiff(op manifest.InstallOperation, raw []byte, out Output, old OldImage, blockSize uint32) error {
	if old == nil {
		return &MissingSource{OpType: op.Type}
	}
	src, err := readExtents(old, op.SrcExtents, blockSize)
	if err != nil {
		return err
	}
	patch, err := parseBSDF2(raw)
	if err != nil {
		return err
	}

	wantLen := sumExtentBytes(op.DstExtents, blockSize)
	if patch.DstLen != wantLen {
		return badFormat("bsdiff patch destination length disagrees with manifest dst_extents")
	}

	dst, err := applyBSDiff(src, patch)
	if err != nil {
		return err
	}
	return scatterWrite(out, dst, op.DstExtents, blockSize)
}

func readExtents(r OldImage, extents []manifest.Extent, blockSize uint32) ([]byte, error) {
	total := sumExtentBytes(extents, blockSize)
	buf := make([]byte, total)
	var cursor int64
	for _, ext := range extents {
		n := int64(ext.NumBlocks) * int64(blockSize)
		if n == 0 {
			continue
		}
		if _, err := r.ReadAt(buf[cursor:cursor+n], int64(ext.StartBlock)*int64(blockSize)); err != nil {
			return nil, &IOError{Op: "read old-image extent", Cause: err}
		}
		cursor += n
	}
	return buf, nil
}

// scatterWrite splits data across extents in order, writing each chunk at
// its extent's block-aligned destination offset.
func scatterWrite(out Output, data []byte, extents []manifest.Extent, blockSize uint32) error {
	var cursor int64
	for _, ext := range extents {
		n := int64(ext.NumBlocks) * int64(blockSize)
		if n == 0 {
			continue
		}
		if cursor+n > int64(len(data)) {
			return badFormat("scatter write runs past the assembled buffer")
		}
		if err := writeAt(out, data[cursor:cursor+n], int64(ext.StartBlock)*int64(blockSize)); err != nil {
			return err
		}
		cursor += n
	}
	return nil
}

func sumExtentBytes(extents []manifest.Extent, blockSize uint32) int64 {
	var total int64
	for _, ext := range extents {
		total += int64(ext.NumBlocks) * int64(blockSize)
	}
	return total
}
