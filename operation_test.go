package payloadextract

import (
	"bytes"
	"crypto/sha256"
	"testing"

	dsnetbzip2 "github.com/dsnet/compress/bzip2"

	"github.com/otapack/payload-extract/internal/manifest"
)

// full-OTA REPLACE.
func TestApplyOperationReplace(t *testing.T) {
	payload := bytes.NewReader([]byte("ABCD"))
	out := &memBuffer{}
	op := manifest.InstallOperation{
		Type:       opReplace,
		DataOffset: 0,
		DataLength: 4,
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	if err := applyOperation(op, payload, out, nil, 0, 4096); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[0:4], []byte("ABCD")) {
		t.Fatalf("got %q", out.data[0:4])
	}
}

// ZERO fills extents.
func TestApplyOperationZero(t *testing.T) {
	payload := bytes.NewReader(nil)
	out := &memBuffer{}
	const blockSize = 4096
	op := manifest.InstallOperation{
		Type: opZero,
		DstExtents: []manifest.Extent{
			{StartBlock: 2, NumBlocks: 1},
			{StartBlock: 5, NumBlocks: 2},
		},
	}
	if err := applyOperation(op, payload, out, nil, 0, blockSize); err != nil {
		t.Fatal(err)
	}
	if len(out.data) != 7*blockSize {
		t.Fatalf("got len %d, want %d", len(out.data), 7*blockSize)
	}
	for _, span := range [][2]int{{2 * blockSize, 3 * blockSize}, {5 * blockSize, 7 * blockSize}} {
		for _, b := range out.data[span[0]:span[1]] {
			if b != 0 {
				t.Fatalf("expected zero byte in span %v", span)
			}
		}
	}
}

// REPLACE_BZ round trip, plus hash-mismatch rejection.
func TestApplyOperationReplaceBZ(t *testing.T) {
	plain := []byte("hello world")
	var buf bytes.Buffer
	w := dsnetbzip2.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	compressed := buf.Bytes()
	hash := sha256.Sum256(compressed)

	op := manifest.InstallOperation{
		Type:       opReplaceBZ,
		DataLength: uint64(len(compressed)),
		DataSHA256: hash[:],
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}

	out := &memBuffer{}
	if err := applyOperation(op, bytes.NewReader(compressed), out, nil, 0, 16); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[0:11], plain) {
		t.Fatalf("got %q", out.data[0:11])
	}

	// Corrupting one hash byte must fail closed with no write.
	badHash := append([]byte(nil), hash[:]...)
	badHash[0] ^= 0xff
	op.DataSHA256 = badHash
	out2 := &memBuffer{}
	err := applyOperation(op, bytes.NewReader(compressed), out2, nil, 0, 16)
	if err == nil {
		t.Fatal("expected IntegrityError")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("got %T, want *IntegrityError", err)
	}
	if len(out2.data) != 0 {
		t.Fatal("destination must be untouched on hash mismatch")
	}
}

// SOURCE_COPY.
func TestApplyOperationSourceCopy(t *testing.T) {
	const blockSize = 4096
	old := &memBuffer{data: make([]byte, 2*blockSize)}
	for i := blockSize; i < 2*blockSize; i++ {
		old.data[i] = 0x42
	}

	op := manifest.InstallOperation{
		Type:       opSourceCopy,
		SrcExtents: []manifest.Extent{{StartBlock: 1, NumBlocks: 1}},
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	out := &memBuffer{}
	if err := applyOperation(op, bytes.NewReader(nil), out, old, 0, blockSize); err != nil {
		t.Fatal(err)
	}
	for _, b := range out.data[0:blockSize] {
		if b != 0x42 {
			t.Fatal("expected all 0x42 bytes copied from old image")
		}
	}
}

// SOURCE_COPY with multiple, non-contiguous dst extents: the op seeks to
// dst_extents[0] once and appends every source extent sequentially from
// there, rather than reseeking to each dst extent's own start block.
func TestApplyOperationSourceCopyMultipleDstExtents(t *testing.T) {
	const blockSize = 4096
	old := &memBuffer{data: make([]byte, 2*blockSize)}
	for i := 0; i < blockSize; i++ {
		old.data[i] = 0xAA
	}
	for i := blockSize; i < 2*blockSize; i++ {
		old.data[i] = 0xBB
	}

	op := manifest.InstallOperation{
		Type:       opSourceCopy,
		SrcExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}, {StartBlock: 1, NumBlocks: 1}},
		DstExtents: []manifest.Extent{{StartBlock: 5, NumBlocks: 1}, {StartBlock: 9, NumBlocks: 1}},
	}
	out := &memBuffer{}
	if err := applyOperation(op, bytes.NewReader(nil), out, old, 0, blockSize); err != nil {
		t.Fatal(err)
	}

	for _, b := range out.data[5*blockSize : 6*blockSize] {
		if b != 0xAA {
			t.Fatal("expected first source extent contiguous from dst_extents[0]")
		}
	}
	for _, b := range out.data[6*blockSize : 7*blockSize] {
		if b != 0xBB {
			t.Fatal("expected second source extent to follow immediately, not reseek to dst_extents[1]")
		}
	}
	if len(out.data) > 7*blockSize {
		t.Fatalf("output grew past the contiguous source run (len=%d); dst_extents[1] must not have been written to", len(out.data))
	}
}

func TestApplyOperationSourceCopyMissingSource(t *testing.T) {
	op := manifest.InstallOperation{
		Type:       opSourceCopy,
		SrcExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	err := applyOperation(op, bytes.NewReader(nil), &memBuffer{}, nil, 0, 4096)
	if _, ok := err.(*MissingSource); !ok {
		t.Fatalf("got %T (%v), want *MissingSource", err, err)
	}
}

func TestApplyOperationUnsupportedType(t *testing.T) {
	op := manifest.InstallOperation{Type: 7, DstExtents: []manifest.Extent{{NumBlocks: 1}}}
	err := applyOperation(op, bytes.NewReader(nil), &memBuffer{}, nil, 0, 4096)
	if _, ok := err.(*UnsupportedOperation); !ok {
		t.Fatalf("got %T, want *UnsupportedOperation", err)
	}
}

// REPLACE_XZ round trip.
func TestApplyOperationReplaceXZ(t *testing.T) {
	plain := []byte("hello xz world")
	compressed := mustXZCompress(t, plain)
	hash := sha256.Sum256(compressed)

	op := manifest.InstallOperation{
		Type:       opReplaceXZ,
		DataLength: uint64(len(compressed)),
		DataSHA256: hash[:],
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	out := &memBuffer{}
	if err := applyOperation(op, bytes.NewReader(compressed), out, nil, 0, 32); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[:len(plain)], plain) {
		t.Fatalf("got %q", out.data[:len(plain)])
	}
}

// REPLACE_ZSTD round trip.
func TestApplyOperationReplaceZstd(t *testing.T) {
	plain := []byte("hello zstd world")
	compressed := mustZstdCompress(t, plain)
	hash := sha256.Sum256(compressed)

	op := manifest.InstallOperation{
		Type:       opReplaceZstd,
		DataLength: uint64(len(compressed)),
		DataSHA256: hash[:],
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	out := &memBuffer{}
	if err := applyOperation(op, bytes.NewReader(compressed), out, nil, 0, 32); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[:len(plain)], plain) {
		t.Fatalf("got %q", out.data[:len(plain)])
	}
}

// BROTLI_BSDIFF dispatches through the same BSDF2 patch path as
// SOURCE_BSDIFF; the operation type only selects the outer dispatch, the
// inner section codecs are named in the BSDF2 header itself.
func TestApplyOperationBrotliBSDiff(t *testing.T) {
	const blockSize = 8
	src := []byte("aaaaaaaa")
	want := []byte("aaabaaaa")
	diff := make([]byte, 8)
	for i := range diff {
		diff[i] = want[i] - src[i]
	}

	patchBytes := buildBSDF2PatchWithCodec(t, 2, 2, 2, []controlRecord{{DiffLen: 8, ExtraLen: 0, SeekAdj: 0}}, diff, nil, 8)

	old := &memBuffer{data: append([]byte(nil), src...)}
	out := &memBuffer{}
	op := manifest.InstallOperation{
		Type:       opBrotliBSDiff,
		DataLength: uint64(len(patchBytes)),
		SrcExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	if err := applyOperation(op, bytes.NewReader(patchBytes), out, old, 0, blockSize); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[0:8], want) {
		t.Fatalf("got %q, want %q", out.data[0:8], want)
	}
}

// SOURCE_BSDIFF, legacy bsdiff4 framing.
func TestApplyOperationSourceBSDiffLegacy(t *testing.T) {
	const blockSize = 8
	src := []byte("aaaaaaaa")
	want := []byte("aaabaaaa")
	diff := make([]byte, 8)
	for i := range diff {
		diff[i] = want[i] - src[i]
	}

	var ctrl bytes.Buffer
	d1 := encodeInt64(8)
	d2 := encodeInt64(0)
	d3 := encodeInt64(0)
	ctrl.Write(d1[:])
	ctrl.Write(d2[:])
	ctrl.Write(d3[:])

	bz := func(b []byte) []byte {
		var out bytes.Buffer
		w := dsnetbzip2.NewWriter(&out)
		w.Write(b)
		w.Close()
		return out.Bytes()
	}
	ctrlC := bz(ctrl.Bytes())
	diffC := bz(diff)
	extraC := bz(nil)

	var patch bytes.Buffer
	patch.WriteString("BSDIFF40")
	lc := encodeInt64(int64(len(ctrlC)))
	ld := encodeInt64(int64(len(diffC)))
	ldst := encodeInt64(8)
	patch.Write(lc[:])
	patch.Write(ld[:])
	patch.Write(ldst[:])
	patch.Write(ctrlC)
	patch.Write(diffC)
	patch.Write(extraC)

	old := &memBuffer{data: append([]byte(nil), src...)}
	out := &memBuffer{}
	op := manifest.InstallOperation{
		Type:       opSourceBSDiff,
		DataLength: uint64(patch.Len()),
		SrcExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
		DstExtents: []manifest.Extent{{StartBlock: 0, NumBlocks: 1}},
	}
	if err := applyOperation(op, bytes.NewReader(patch.Bytes()), out, old, 0, blockSize); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.data[0:8], want) {
		t.Fatalf("got %q, want %q", out.data[0:8], want)
	}
}
