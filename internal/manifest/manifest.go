// Package manifest decodes the AOSP update_metadata.proto
// DeltaArchiveManifest without depending on generated protoc-gen-go code.
// It walks the wire format directly with
// google.golang.org/protobuf/encoding/protowire, extracting only the
// fields the extraction engine actually needs: block_size,
// partitions[].partition_name, partitions[].operations[], and each
// operation's type/data_offset/data_length/hash/extents.
//
// Field numbers follow the published update_metadata.proto layout.
package manifest

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Extent is a (start_block, num_blocks) byte range over an image, in units
// of the manifest's block_size.
type Extent struct {
	StartBlock uint64
	NumBlocks  uint64
}

// InstallOperation is one entry in a PartitionUpdate's operation sequence.
type InstallOperation struct {
	Type       uint32
	DataOffset uint64
	DataLength uint64
	DataSHA256 []byte // nil when the manifest didn't set this field
	SrcExtents []Extent
	DstExtents []Extent
}

// PartitionUpdate names a partition and the ordered operations that
// reconstruct its image.
type PartitionUpdate struct {
	PartitionName string
	Operations    []InstallOperation
}

// Manifest is the decoded DeltaArchiveManifest, restricted to the fields
// the extraction engine needs.
type Manifest struct {
	BlockSize  uint32
	Partitions []PartitionUpdate
}

// field numbers, per the published AOSP update_metadata.proto. These are
// reconstructed from memory, not checked against a .proto or generated
// .pb.go file (neither is available here) — TODO: before trusting this
// decoder against a real payload.bin, verify these against an
// independently sourced fixture (literal captured wire bytes, not ones
// built from these same constants; the existing tests round-trip through
// this file's own encoder and so would pass even if a field number here
// were wrong).
const (
	fieldManifestBlockSize  = 4
	fieldManifestPartitions = 13

	fieldPartitionName       = 1
	fieldPartitionOperations = 7

	fieldOpType       = 1
	fieldOpDataOffset = 2
	fieldOpDataLength = 3
	fieldOpSrcExtents = 4
	fieldOpDstExtents = 6
	fieldOpDataSHA256 = 8

	fieldExtentStartBlock = 1
	fieldExtentNumBlocks  = 2
)

// Decode parses a DeltaArchiveManifest from its wire-format bytes.
func Decode(data []byte) (*Manifest, error) {
	m := &Manifest{}
	err := walkMessage(data, func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error {
		switch num {
		case fieldManifestBlockSize:
			m.BlockSize = uint32(scalar)
		case fieldManifestPartitions:
			p, err := decodePartition(v)
			if err != nil {
				return err
			}
			m.Partitions = append(m.Partitions, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodePartition(data []byte) (*PartitionUpdate, error) {
	p := &PartitionUpdate{}
	err := walkMessage(data, func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error {
		switch num {
		case fieldPartitionName:
			p.PartitionName = string(v)
		case fieldPartitionOperations:
			op, err := decodeOperation(v)
			if err != nil {
				return err
			}
			p.Operations = append(p.Operations, *op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeOperation(data []byte) (*InstallOperation, error) {
	op := &InstallOperation{}
	err := walkMessage(data, func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error {
		switch num {
		case fieldOpType:
			op.Type = uint32(scalar)
		case fieldOpDataOffset:
			op.DataOffset = scalar
		case fieldOpDataLength:
			op.DataLength = scalar
		case fieldOpDataSHA256:
			op.DataSHA256 = append([]byte(nil), v...)
		case fieldOpSrcExtents:
			ext, err := decodeExtent(v)
			if err != nil {
				return err
			}
			op.SrcExtents = append(op.SrcExtents, *ext)
		case fieldOpDstExtents:
			ext, err := decodeExtent(v)
			if err != nil {
				return err
			}
			op.DstExtents = append(op.DstExtents, *ext)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func decodeExtent(data []byte) (*Extent, error) {
	e := &Extent{}
	err := walkMessage(data, func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error {
		switch num {
		case fieldExtentStartBlock:
			e.StartBlock = scalar
		case fieldExtentNumBlocks:
			e.NumBlocks = scalar
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// walkMessage iterates the top-level fields of a wire-format message,
// calling visit once per field. For length-delimited fields v holds the
// raw bytes (string, bytes, or nested message); for varint fields scalar
// holds the decoded value. Unknown fields are skipped, matching proto's
// usual forwards-compatible behavior: the decoder must not refuse to
// decode a manifest just because it carries a field we don't recognize.
func walkMessage(data []byte, visit func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("manifest: malformed field tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("manifest: malformed varint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := visit(num, typ, nil, v); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return fmt.Errorf("manifest: malformed fixed32 field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := visit(num, typ, nil, uint64(v)); err != nil {
				return err
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("manifest: malformed fixed64 field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := visit(num, typ, nil, v); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("manifest: malformed length-delimited field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := visit(num, typ, v, 0); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("manifest: malformed field %d of type %v: %w", num, typ, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
