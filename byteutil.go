package payloadextract

import "encoding/binary"

// u32be decodes a big-endian uint32 from the first 4 bytes of b.
func u32be(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, &FormatError{Msg: "short buffer for u32 read"}
	}
	return binary.BigEndian.Uint32(b), nil
}

// u64be decodes a big-endian uint64 from the first 8 bytes of b.
func u64be(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, &FormatError{Msg: "short buffer for u64 read"}
	}
	return binary.BigEndian.Uint64(b), nil
}
