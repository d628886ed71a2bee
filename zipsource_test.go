package payloadextract

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func buildTestZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestZipSourceReadsPayload(t *testing.T) {
	content := []byte("CrAU-fake-payload-bytes")
	zipBytes := buildTestZip(t, map[string][]byte{"payload.bin": content, "metadata": []byte("other")})

	zs, err := NewZipSource(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		t.Fatal(err)
	}
	defer zs.Close()

	got, err := io.ReadAll(zs)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestZipSourceSeek(t *testing.T) {
	content := []byte("0123456789")
	zipBytes := buildTestZip(t, map[string][]byte{"payload.bin": content})

	zs, err := NewZipSource(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		t.Fatal(err)
	}
	defer zs.Close()

	if _, err := zs.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	if _, err := io.ReadFull(zs, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "567" {
		t.Fatalf("got %q", buf)
	}

	// seek backwards forces a stream reopen
	if _, err := zs.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(zs, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "012" {
		t.Fatalf("got %q", buf)
	}
}

func TestZipSourceMissingPayload(t *testing.T) {
	zipBytes := buildTestZip(t, map[string][]byte{"readme.txt": []byte("no payload here")})
	_, err := NewZipSource(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("got %T, want *NotFound", err)
	}
}
