package zipkit

import (
	"bytes"
	"hash/crc32"
	"testing"
)

func TestWriterAddFileKnownSizes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	content := []byte("known-size content")
	declared := Declared{
		HasCRC32: true, CRC32: crc32.ChecksumIEEE(content),
		HasCompressedSize: true, CompressedSize: uint64(len(content)),
		HasUncompressedSize: true, UncompressedSize: uint64(len(content)),
	}
	header, err := w.AddFile("a.txt", EntryOptions{Method: MethodStore}, bytes.NewReader(content), declared)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if header.Name != "a.txt" {
		t.Errorf("Name = %q, want %q", header.Name, "a.txt")
	}
	if header.UncompressedSize != uint64(len(content)) {
		t.Errorf("UncompressedSize = %d, want %d", header.UncompressedSize, len(content))
	}
	if header.Flags.HasDataDescriptor() {
		t.Error("HasDataDescriptor() = true, want false: all three sizes were declared up front")
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Finalize produced no output")
	}
}

func TestWriterDirectoryEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	header, err := w.AddFile("sub/", EntryOptions{}, nil, Declared{})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if !header.IsDirectory() {
		t.Error("IsDirectory() = false for a trailing-slash name")
	}
	if header.UncompressedSize != 0 {
		t.Errorf("UncompressedSize = %d, want 0 for a directory", header.UncompressedSize)
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestWriterForcedZip64(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	forceZip64 := true
	content := []byte("small content but zip64 forced")
	header, err := w.AddFile("big.bin", EntryOptions{Method: MethodStore, ZIP64: &forceZip64}, bytes.NewReader(content), Declared{})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if header.UncompressedSize != uint64(len(content)) {
		t.Errorf("UncompressedSize = %d, want %d", header.UncompressedSize, len(content))
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r, err := NewBufferReader(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("NewBufferReader: %v", err)
	}
	if !r.Trailer().IsZip64 {
		t.Error("Trailer().IsZip64 = false, want true: ZIP64 was forced via EntryOptions")
	}
}

func TestWriterUnicodeName(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	header, err := w.AddFile("café/naïve.txt", EntryOptions{Method: MethodStore}, bytes.NewReader([]byte("x")), Declared{})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if !header.Flags.HasUTF8() {
		t.Error("HasUTF8() = false for a name outside the CP437-safe range")
	}
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r, err := NewBufferReader(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("NewBufferReader: %v", err)
	}
	entries, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 1 || entries[0].Header.Name != "café/naïve.txt" {
		t.Fatalf("round-tripped name = %+v, want café/naïve.txt", entries)
	}
}

func TestWriterZIP64ForbiddenButRequired(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	forbidZip64 := false
	declared := Declared{
		HasCRC32: true, CRC32: 0,
		HasCompressedSize: true, CompressedSize: uint64(1) << 33,
		HasUncompressedSize: true, UncompressedSize: uint64(1) << 33,
	}
	_, err := w.AddFile("huge.bin", EntryOptions{ZIP64: &forbidZip64}, bytes.NewReader(nil), declared)
	if err == nil {
		t.Fatal("AddFile: expected a range error, zip64 forbidden but declared size exceeds 32 bits")
	}
}

func TestWriterEncodingForbiddenButRequired(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	forbidUTF8 := false
	_, err := w.AddFile("漢字.txt", EntryOptions{UTF8: &forbidUTF8}, bytes.NewReader(nil), Declared{})
	if err == nil {
		t.Fatal("AddFile: expected an encoding error, utf8 forbidden but name needs it")
	}
}

func TestWriterFinalizeTwiceFails(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Finalize(""); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if err := w.Finalize(""); err == nil {
		t.Fatal("second Finalize: expected an error, writer is already done")
	}
}

func TestWriterAddFileAfterFinalizeFails(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Finalize(""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := w.AddFile("too-late.txt", EntryOptions{}, bytes.NewReader(nil), Declared{}); err == nil {
		t.Fatal("AddFile after Finalize: expected an error")
	}
}
