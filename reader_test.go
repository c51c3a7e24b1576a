package zipkit

import (
	"bytes"
	"context"
	"io"
	"testing"

	"go4.org/readerutil"
)

// bytesReaderAtContext adapts a byte slice to ReaderAtContext, consulting
// the context only to fail a read once it is already done. The slice
// itself is composed from several sections via go4.org/readerutil, the same
// way the teacher's zip_test.go builds its golden-archive fixtures
// (sizeWithEnd, rleView) out of several ReaderAt pieces rather than one
// contiguous buffer, to exercise NewReader against a non-trivially-backed
// source instead of a single bytes.Reader.
type bytesReaderAtContext struct {
	data readerutil.SizeReaderAt
}

func newBytesReaderAtContext(data []byte) *bytesReaderAtContext {
	mid := len(data) / 2
	head := io.NewSectionReader(bytes.NewReader(data[:mid]), 0, int64(mid))
	tail := io.NewSectionReader(bytes.NewReader(data[mid:]), 0, int64(len(data)-mid))
	return &bytesReaderAtContext{data: readerutil.NewMultiReaderAt(head, tail)}
}

func (b *bytesReaderAtContext) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.data.ReadAt(p, off)
}

func TestReaderWalksCentralDirectory(t *testing.T) {
	files := map[string]string{
		"one.txt":   "first file content",
		"two.txt":   "second file content, a little longer",
		"three.txt": "third",
	}
	data := buildTestArchive(t, files)

	src := newBytesReaderAtContext(data)
	r, err := NewReader(context.Background(), src, int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Trailer().EntryCount != uint64(len(files)) {
		t.Fatalf("EntryCount = %d, want %d", r.Trailer().EntryCount, len(files))
	}

	seen := map[string]bool{}
	for {
		e, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		want, ok := files[e.Header.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", e.Header.Name)
		}
		got, err := e.Bytes()
		if err != nil {
			t.Fatalf("Bytes(%q): %v", e.Header.Name, err)
		}
		if string(got) != want {
			t.Errorf("content of %q = %q, want %q", e.Header.Name, got, want)
		}
		seen[e.Header.Name] = true
	}
	if len(seen) != len(files) {
		t.Errorf("saw %d entries, want %d", len(seen), len(files))
	}
}

func TestReaderSmallChunkSizeForcesRefill(t *testing.T) {
	files := map[string]string{
		"one.txt": "first file content here",
		"two.txt": "second file content here, somewhat longer than the first",
	}
	data := buildTestArchive(t, files)

	src := newBytesReaderAtContext(data)
	// A small chunk size (but still big enough to hold one EOCDR) forces
	// ensure() to refill its scrolling buffer repeatedly while walking the
	// central directory.
	r, err := NewReader(context.Background(), src, int64(len(data)), WithChunkSize(32))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	count := 0
	for {
		_, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if count != len(files) {
		t.Errorf("walked %d entries, want %d", count, len(files))
	}
}
