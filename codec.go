package payloadextract

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"io"

	"github.com/DataDog/zstd"
	"github.com/andybalholm/brotli"
	goliblzma "github.com/remyoudompheng/go-liblzma"
	"github.com/ulikunitz/xz"
)

// Codec names one of the compression formats operations or BSDF2 sections
// may be encoded with. The zero value, Identity, is a pass-through.
type Codec int

const (
	Identity Codec = iota
	BZ2
	Brotli
	XZLZMA
	Zstd
)

func (c Codec) String() string {
	switch c {
	case Identity:
		return "identity"
	case BZ2:
		return "bz2"
	case Brotli:
		return "brotli"
	case XZLZMA:
		return "xz/lzma"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// decompress runs the single-shot decoder for codec over data, returning
// the decompressed bytes or a DecodeError naming the codec.
func decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case Identity:
		return data, nil
	case BZ2:
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, &DecodeError{Codec: codec.String(), Cause: err}
		}
		return out, nil
	case Brotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, &DecodeError{Codec: codec.String(), Cause: err}
		}
		return out, nil
	case XZLZMA:
		out, err := decompressXZOrLZMA(data)
		if err != nil {
			return nil, &DecodeError{Codec: codec.String(), Cause: err}
		}
		return out, nil
	case Zstd:
		out, err := zstd.Decompress(nil, data)
		if err != nil {
			return nil, &DecodeError{Codec: codec.String(), Cause: err}
		}
		return out, nil
	default:
		return nil, &DecodeError{Codec: "unknown", Cause: errors.New("no such codec")}
	}
}

// decompressXZOrLZMA tries XZ first and falls back to raw LZMA only on a
// header/magic mismatch, not on any decode error. xz.NewReader parses the
// container header (magic, stream flags) before returning, so an error
// there means the bytes were never a well-formed XZ container at all —
// that's the case worth retrying with the liblzma auto-decoder, which
// natively detects the legacy headered .lzma (LZMA1) framing AOSP's host
// tooling sometimes emits. An error from reading the body of an XZ stream
// whose header *did* parse means the container is genuinely corrupt, and
// must surface as a decode failure rather than silently falling through
// to a different codec and risking a garbage "successful" decode.
func decompressXZOrLZMA(data []byte) ([]byte, error) {
	xzr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		lr, lerr := goliblzma.NewReader(bytes.NewReader(data))
		if lerr != nil {
			return nil, err
		}
		defer lr.Close()
		return io.ReadAll(lr)
	}
	return io.ReadAll(xzr)
}
