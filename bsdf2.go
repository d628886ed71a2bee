package payloadextract

import "bytes"

// legacyBSDiff4Magic is the 8-byte header bsdiff4 has always used; a BSDF2
// header is instead "BSDF2" followed by 3 per-section codec id bytes.
var legacyBSDiff4Magic = []byte("BSDIFF40")

const bsdf2MagicPrefix = "BSDF2"

// controlRecord is one (diff_len, extra_len, seek_adj) triple from a
// parsed patch's control stream. seek_adj is routinely negative.
type controlRecord struct {
	DiffLen  int64
	ExtraLen int64
	SeekAdj  int64
}

// bsdf2Patch is the fully decompressed, parsed form of a bsdiff4/BSDF2
// patch: a destination length, a sequence of control records, and the
// decompressed diff/extra byte streams those records index into.
type bsdf2Patch struct {
	DstLen   int64
	Controls []controlRecord
	Diff     []byte
	Extra    []byte
}

// parseBSDF2 parses the framed patch layout: an 8-byte magic (legacy
// bsdiff4 or "BSDF2" + 3 codec bytes), three signed int64s (control length,
// diff length, destination length), then the control/diff/extra compressed
// sections back to back. It
// decompresses all three sections before returning.
func parseBSDF2(data []byte) (*bsdf2Patch, error) {
	if len(data) < 32 {
		return nil, badFormat("bsdiff/BSDF2 patch shorter than header")
	}

	magic := data[0:8]
	var ctrlCodec, diffCodec, extraCodec Codec

	switch {
	case bytes.Equal(magic, legacyBSDiff4Magic):
		ctrlCodec, diffCodec, extraCodec = BZ2, BZ2, BZ2
	case string(magic[0:5]) == bsdf2MagicPrefix:
		var err error
		if ctrlCodec, err = bsdf2CodecByte(magic[5]); err != nil {
			return nil, err
		}
		if diffCodec, err = bsdf2CodecByte(magic[6]); err != nil {
			return nil, err
		}
		if extraCodec, err = bsdf2CodecByte(magic[7]); err != nil {
			return nil, err
		}
	default:
		return nil, badFormat("bad bsdiff/BSDF2 magic")
	}

	lenCtrl := decodeInt64(data[8:16])
	lenDiff := decodeInt64(data[16:24])
	lenDst := decodeInt64(data[24:32])
	if lenCtrl < 0 || lenDiff < 0 || lenDst < 0 {
		return nil, badFormat("bsdiff/BSDF2 patch declares a negative section length")
	}

	body := data[32:]
	if int64(len(body)) < lenCtrl+lenDiff {
		return nil, badFormat("bsdiff/BSDF2 patch truncated before diff/extra sections")
	}

	rawCtrl := body[:lenCtrl]
	rawDiff := body[lenCtrl : lenCtrl+lenDiff]
	rawExtra := body[lenCtrl+lenDiff:]

	ctrlBytes, err := decompress(ctrlCodec, rawCtrl)
	if err != nil {
		return nil, err
	}
	diffBytes, err := decompress(diffCodec, rawDiff)
	if err != nil {
		return nil, err
	}
	extraBytes, err := decompress(extraCodec, rawExtra)
	if err != nil {
		return nil, err
	}

	if len(ctrlBytes)%24 != 0 {
		return nil, badFormat("bsdiff/BSDF2 control stream is not a multiple of 24 bytes")
	}
	controls := make([]controlRecord, 0, len(ctrlBytes)/24)
	for i := 0; i < len(ctrlBytes); i += 24 {
		controls = append(controls, controlRecord{
			DiffLen:  decodeInt64(ctrlBytes[i : i+8]),
			ExtraLen: decodeInt64(ctrlBytes[i+8 : i+16]),
			SeekAdj:  decodeInt64(ctrlBytes[i+16 : i+24]),
		})
	}

	return &bsdf2Patch{
		DstLen:   lenDst,
		Controls: controls,
		Diff:     diffBytes,
		Extra:    extraBytes,
	}, nil
}

func bsdf2CodecByte(b byte) (Codec, error) {
	switch b {
	case 0:
		return Identity, nil
	case 1:
		return BZ2, nil
	case 2:
		return Brotli, nil
	default:
		return 0, badFormat("bsdiff/BSDF2 header names an unknown section codec")
	}
}

// decodeInt64 implements bsdiff's "decode_int64": little-endian absolute
// value with the sign carried in the high bit of the top byte. Plain
// two's-complement decoding would silently corrupt any negative value
// (seek_adj is routinely negative), so this must not be replaced with a
// generic binary.LittleEndian.Uint64 cast.
func decodeInt64(b []byte) int64 {
	y := int64(b[7] & 0x7f)
	y = y*256 + int64(b[6])
	y = y*256 + int64(b[5])
	y = y*256 + int64(b[4])
	y = y*256 + int64(b[3])
	y = y*256 + int64(b[2])
	y = y*256 + int64(b[1])
	y = y*256 + int64(b[0])
	if b[7]&0x80 != 0 {
		y = -y
	}
	return y
}

// encodeInt64 is decodeInt64's inverse, used only by tests to build patch
// fixtures in-process.
func encodeInt64(x int64) [8]byte {
	var b [8]byte
	neg := x < 0
	if neg {
		x = -x
	}
	for i := 0; i < 8; i++ {
		b[i] = byte(x & 0xff)
		x >>= 8
	}
	if neg {
		b[7] |= 0x80
	}
	return b
}
