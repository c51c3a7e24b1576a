package zipkit

import (
	"bytes"
	"io"
	"testing"
)

func TestCompressDecompressStreamStore(t *testing.T) {
	content := []byte("hello, world! this is test content for the store method.")
	var buf bytes.Buffer
	crc, compressed, uncompressed, err := CompressStream(MethodStore, DefaultCompressors(), &buf, bytes.NewReader(content), Declared{})
	if err != nil {
		t.Fatalf("CompressStream: %v", err)
	}
	if uncompressed != uint64(len(content)) {
		t.Errorf("uncompressedSize = %d, want %d", uncompressed, len(content))
	}
	if compressed != uint64(buf.Len()) {
		t.Errorf("compressedSize = %d, want %d", compressed, buf.Len())
	}

	rc, err := DecompressStream(MethodStore, DefaultDecompressors(), &buf, crc, uncompressed)
	if err != nil {
		t.Fatalf("DecompressStream: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("round-tripped content = %q, want %q", got, content)
	}
}

func TestCompressDecompressStreamDeflate(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100)
	var buf bytes.Buffer
	crc, _, uncompressed, err := CompressStream(MethodDeflate, DefaultCompressors(), &buf, bytes.NewReader(content), Declared{})
	if err != nil {
		t.Fatalf("CompressStream: %v", err)
	}
	if buf.Len() >= len(content) {
		t.Errorf("deflate output (%d bytes) not smaller than input (%d bytes)", buf.Len(), len(content))
	}

	rc, err := DecompressStream(MethodDeflate, DefaultDecompressors(), &buf, crc, uncompressed)
	if err != nil {
		t.Fatalf("DecompressStream: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("round-tripped deflate content does not match original")
	}
}

func TestCompressStreamDeclaredMismatch(t *testing.T) {
	var buf bytes.Buffer
	_, _, _, err := CompressStream(MethodStore, DefaultCompressors(), &buf, bytes.NewReader([]byte("abc")), Declared{
		HasCRC32: true, CRC32: 0xffffffff,
	})
	if err == nil {
		t.Fatal("CompressStream: expected a format error for a wrong declared crc32")
	}
}

func TestDecompressStreamDetectsCorruption(t *testing.T) {
	content := []byte("some content")
	var buf bytes.Buffer
	_, _, uncompressed, err := CompressStream(MethodStore, DefaultCompressors(), &buf, bytes.NewReader(content), Declared{})
	if err != nil {
		t.Fatalf("CompressStream: %v", err)
	}

	rc, err := DecompressStream(MethodStore, DefaultDecompressors(), &buf, 0xdeadbeef, uncompressed)
	if err != nil {
		t.Fatalf("DecompressStream: %v", err)
	}
	defer rc.Close()
	if _, err := io.ReadAll(rc); err == nil {
		t.Fatal("ReadAll: expected a crc32 mismatch error")
	}
}

func TestCompressStreamUnknownMethod(t *testing.T) {
	var buf bytes.Buffer
	_, _, _, err := CompressStream(99, DefaultCompressors(), &buf, bytes.NewReader(nil), Declared{})
	if err == nil {
		t.Fatal("CompressStream: expected a format error for an unregistered method")
	}
}
