package zipkit

import (
	"context"
	"errors"
	"io"
)

// defaultChunkSize is the prefetch window Reader reads at a time when it
// does not yet know how much of the archive it needs, per spec.md §4.14.
const defaultChunkSize = 1 << 20

// ReaderAtContext is a random-access read capability that carries a
// context, the way every suspension point in this package can be
// cancelled. It mirrors the teacher's own ReaderAt contract.
type ReaderAtContext interface {
	ReadAtContext(ctx context.Context, p []byte, off int64) (n int, err error)
}

// Reader is a random-access reader over a caller-supplied ReaderAtContext
// of known size. It opens by locating the trailer from a tail window,
// refilling if a ZIP64 record lies outside it, then walks the central
// directory with a scrolling read-ahead buffer. See spec.md §4.14.
type Reader struct {
	src           ReaderAtContext
	size          int64
	chunkSize     int64
	decompressors map[uint16]Decompressor
	trailer       *Trailer

	buf      []byte
	bufStart int64
	cursor   int64
	index    uint64
}

// ReaderOption configures NewReader.
type ReaderOption func(*Reader)

// WithChunkSize overrides the default 1 MiB prefetch window.
func WithChunkSize(n int64) ReaderOption {
	return func(r *Reader) { r.chunkSize = n }
}

// WithDecompressors overrides the default Store/Deflate decompressor table.
func WithDecompressors(d map[uint16]Decompressor) ReaderOption {
	return func(r *Reader) { r.decompressors = d }
}

// NewReader opens a Reader over src, whose total size is size, locating and
// parsing the archive trailer before returning.
func NewReader(ctx context.Context, src ReaderAtContext, size int64, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		src:           src,
		size:          size,
		chunkSize:     defaultChunkSize,
		decompressors: DefaultDecompressors(),
	}
	for _, opt := range opts {
		opt(r)
	}

	trailer, err := r.locateTrailer(ctx)
	if err != nil {
		return nil, err
	}
	r.trailer = trailer
	r.cursor = int64(trailer.DirectoryOffset)
	return r, nil
}

// Trailer returns the parsed archive-level summary.
func (r *Reader) Trailer() *Trailer { return r.trailer }

// locateTrailer reads a tail window of up to chunkSize bytes (or the whole
// archive, if smaller) and locates the EOCDR/ZIP64 chain within it,
// widening the window and retrying if the ZIP64 EOCDR lies before it.
func (r *Reader) locateTrailer(ctx context.Context) (*Trailer, error) {
	windowLen := r.chunkSize
	if windowLen > r.size {
		windowLen = r.size
	}
	start := r.size - windowLen

	for {
		buf := make([]byte, windowLen)
		n, err := r.src.ReadAtContext(ctx, buf, start)
		if err != nil && err != io.EOF {
			return nil, err
		}
		buf = buf[:n]

		trailer, err := LocateTrailer(buf, start)
		if err == nil {
			return trailer, nil
		}
		var need *NeedMoreBytesError
		if !errors.As(err, &need) {
			return nil, err
		}
		newStart := need.Offset
		if newStart > start {
			newStart = start
		}
		windowLen = (start + windowLen) - newStart
		start = newStart
	}
}

// ensure returns the length-byte slice at absolute offset, refilling the
// internal scrolling buffer from src if it does not already cover that
// range.
func (r *Reader) ensure(ctx context.Context, offset int64, length int) ([]byte, error) {
	end := offset + int64(length)
	if offset >= r.bufStart && end <= r.bufStart+int64(len(r.buf)) {
		lo := offset - r.bufStart
		return r.buf[lo : lo+int64(length)], nil
	}

	readLen := r.chunkSize
	if readLen < int64(length) {
		readLen = int64(length)
	}
	if offset+readLen > r.size {
		readLen = r.size - offset
	}
	buf := make([]byte, readLen)
	n, err := r.src.ReadAtContext(ctx, buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	buf = buf[:n]
	if int64(len(buf)) < int64(length) {
		return nil, wrapErr(ErrFormat, "unexpected end of archive while reading central directory", nil)
	}
	r.buf = buf
	r.bufStart = offset
	return r.buf[:length], nil
}

// Next parses and returns the next central directory entry. It returns
// io.EOF once EntryCount entries have been produced.
func (r *Reader) Next(ctx context.Context) (*Entry, error) {
	if r.index >= r.trailer.EntryCount {
		return nil, io.EOF
	}

	prefixBytes, err := r.ensure(ctx, r.cursor, centralHeaderFixedLen)
	if err != nil {
		return nil, err
	}
	prefix, err := peekCentralHeaderPrefix(prefixBytes)
	if err != nil {
		return nil, err
	}

	full, err := r.ensure(ctx, r.cursor, prefix.TotalLen())
	if err != nil {
		return nil, err
	}
	header, n, err := parseCentralHeader(full)
	if err != nil {
		return nil, err
	}
	r.cursor += int64(n)
	r.index++

	entry := newEntry(header, func() (io.ReadCloser, error) {
		return r.openContent(ctx, header)
	})
	return entry, nil
}

// openContent reads the 30-byte local header at the entry's recorded
// offset to discover where the payload begins, then streams exactly
// CompressedSize bytes from that position through the method's
// decompressor, per spec.md §4.14.
func (r *Reader) openContent(ctx context.Context, header *DirectoryEntry) (io.ReadCloser, error) {
	localOff := int64(header.LocalHeaderOffset)
	fixed := make([]byte, localHeaderFixedLen)
	n, err := r.src.ReadAtContext(ctx, fixed, localOff)
	if err != nil {
		return nil, err
	}
	if n < localHeaderFixedLen {
		return nil, wrapErr(ErrFormat, "truncated local file header", nil)
	}
	prefix, err := peekLocalHeaderPrefix(fixed)
	if err != nil {
		return nil, err
	}
	payloadStart := localOff + int64(localHeaderFixedLen+prefix.nameLen+prefix.extraLen)

	src := &contextSectionReader{
		ctx:       ctx,
		src:       r.src,
		off:       payloadStart,
		remaining: int64(header.CompressedSize),
	}
	return DecompressStream(header.Method, r.decompressors, src, header.CRC32, header.UncompressedSize)
}

// contextSectionReader streams a fixed-length byte range out of a
// ReaderAtContext, the way io.SectionReader does for a plain io.ReaderAt.
type contextSectionReader struct {
	ctx       context.Context
	src       ReaderAtContext
	off       int64
	remaining int64
}

func (s *contextSectionReader) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.src.ReadAtContext(s.ctx, p, s.off)
	s.off += int64(n)
	s.remaining -= int64(n)
	if err == nil && s.remaining == 0 {
		err = io.EOF
	}
	return n, err
}
