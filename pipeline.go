package zipkit

import (
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compressor wraps dst with a compressing io.WriteCloser for one method.
// Closing the returned writer must flush any buffered output to dst but
// must not close dst itself.
type Compressor func(dst io.Writer) (io.WriteCloser, error)

// Decompressor wraps src with a decompressing io.ReadCloser for one
// method. Closing the returned reader releases any resources it holds but
// must not close src itself.
type Decompressor func(src io.Reader) (io.ReadCloser, error)

// nopWriteCloser adapts an io.Writer (the identity "Store" transform) to
// io.WriteCloser.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func storeCompressor(dst io.Writer) (io.WriteCloser, error) { return nopWriteCloser{dst}, nil }

func storeDecompressor(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(src), nil }

func deflateCompressor(dst io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(dst, flate.DefaultCompression)
}

func deflateDecompressor(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// DefaultCompressors returns the built-in compressor table: Store (always
// available) and Deflate backed by github.com/klauspost/compress/flate.
// Per spec.md §4.10, the library always supplies Store's identity
// transform; everything else, including this Deflate default, may be
// overridden by a caller-supplied table.
func DefaultCompressors() map[uint16]Compressor {
	return map[uint16]Compressor{
		MethodStore:   storeCompressor,
		MethodDeflate: deflateCompressor,
	}
}

// DefaultDecompressors returns the matching decompressor table.
func DefaultDecompressors() map[uint16]Decompressor {
	return map[uint16]Decompressor{
		MethodStore:   storeDecompressor,
		MethodDeflate: deflateDecompressor,
	}
}

// Declared carries whatever subset of {crc32, compressedSize,
// uncompressedSize} a Writer caller pre-declared for an entry before its
// content was known to be streamed. Fields left at Has*=false are measured
// rather than validated.
type Declared struct {
	CRC32               uint32
	HasCRC32            bool
	CompressedSize      uint64
	HasCompressedSize   bool
	UncompressedSize    uint64
	HasUncompressedSize bool
}

// countingHash taps a reader to accumulate a CRC-32 and byte count as it is
// read.
type countingHash struct {
	r    io.Reader
	hash uint32Hash
	n    uint64
}

// uint32Hash is the minimal surface this package needs from hash.Hash32,
// kept separate so pipeline.go doesn't have to import "hash" just for the
// interface name.
type uint32Hash interface {
	Write(p []byte) (int, error)
	Sum32() uint32
}

func (c *countingHash) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
		c.n += uint64(n)
	}
	return n, err
}

// countingWriter taps a writer to accumulate a byte count as it is
// written.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// CompressStream pipes src through the Compressor registered for method
// (falling back to the identity transform for MethodStore when transforms
// has no entry), writing compressed chunks to dst as they are produced.
// It accumulates the actual CRC-32 and uncompressed byte count of src and
// the actual compressed byte count written to dst; if declared supplies
// any of those values, a mismatch against the measured value is a
// FormatError, per spec.md §4.10's compress-side contract.
func CompressStream(method uint16, transforms map[uint16]Compressor, dst io.Writer, src io.Reader, declared Declared) (crc32Val uint32, compressedSize, uncompressedSize uint64, err error) {
	comp, ok := transforms[method]
	if !ok {
		if method == MethodStore {
			comp = storeCompressor
		} else {
			return 0, 0, 0, newErr(ErrFormat, "unknown compression method")
		}
	}

	cr := &countingHash{r: src, hash: crc32.NewIEEE()}
	cw := &countingWriter{w: dst}

	wc, err := comp(cw)
	if err != nil {
		return 0, 0, 0, err
	}
	if _, err := io.Copy(wc, cr); err != nil {
		return 0, 0, 0, err
	}
	if err := wc.Close(); err != nil {
		return 0, 0, 0, err
	}

	crc32Val = cr.hash.Sum32()
	uncompressedSize = cr.n
	compressedSize = cw.n

	if declared.HasCRC32 && declared.CRC32 != crc32Val {
		return 0, 0, 0, newErr(ErrFormat, "supplied crc32 but invalid")
	}
	if declared.HasUncompressedSize && declared.UncompressedSize != uncompressedSize {
		return 0, 0, 0, newErr(ErrFormat, "supplied uncompressed size but invalid")
	}
	if declared.HasCompressedSize && declared.CompressedSize != compressedSize {
		return 0, 0, 0, newErr(ErrFormat, "supplied compressed size but invalid")
	}
	return crc32Val, compressedSize, uncompressedSize, nil
}

// checkedReader verifies an expected CRC-32 and byte count against what it
// actually read once the underlying decompressor reports io.EOF, per
// spec.md §4.10's decompress-side contract.
type checkedReader struct {
	src       io.ReadCloser
	hash      uint32Hash
	n         uint64
	wantSize  uint64
	wantCRC32 uint32
	checked   bool
}

func (c *checkedReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
		c.n += uint64(n)
	}
	if err == io.EOF && !c.checked {
		c.checked = true
		if c.n != c.wantSize {
			return n, newErr(ErrFormat, "file size mismatch")
		}
		if c.hash.Sum32() != c.wantCRC32 {
			return n, newErr(ErrFormat, "crc32 mismatch")
		}
	}
	return n, err
}

func (c *checkedReader) Close() error { return c.src.Close() }

// DecompressStream selects the Decompressor registered for method
// (falling back to the identity transform for MethodStore), and returns a
// reader over src that accumulates CRC-32 and byte count as it is read,
// failing at end-of-stream if either disagrees with the declared value.
func DecompressStream(method uint16, transforms map[uint16]Decompressor, src io.Reader, wantCRC32 uint32, wantUncompressedSize uint64) (io.ReadCloser, error) {
	dcomp, ok := transforms[method]
	if !ok {
		if method == MethodStore {
			dcomp = storeDecompressor
		} else {
			return nil, newErr(ErrFormat, "unknown compression method")
		}
	}
	rc, err := dcomp(src)
	if err != nil {
		return nil, err
	}
	return &checkedReader{
		src:       rc,
		hash:      crc32.NewIEEE(),
		wantSize:  wantUncompressedSize,
		wantCRC32: wantCRC32,
	}, nil
}
