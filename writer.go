package zipkit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultHighWaterMark is the bounded buffer threshold a Writer uses when
// the caller does not override it, per spec.md §4.15.
const defaultHighWaterMark = 40 * 1024

type writerState int

const (
	writerWritingFiles writerState = iota
	writerFinalizing
	writerDone
)

// EntryOptions carries the per-entry choices spec.md §6 lists as
// recognized: encoding and size-class opt-in/forbid flags, plus the
// metadata fields a caller may want to set explicitly instead of letting
// Writer default them.
type EntryOptions struct {
	Comment       string
	Modified      time.Time
	Method        uint16
	Platform      Platform
	Attributes    *Attributes
	VersionMadeBy uint16
	VersionNeeded uint16

	// UTF8, if non-nil, opts in (true) to always encoding Name/Comment as
	// UTF-8, or forbids (false) it -- in which case a non-CP437-encodable
	// Name or Comment fails with an encoding error. Nil auto-detects.
	UTF8 *bool
	// ZIP64, if non-nil, opts in (true) to always emitting ZIP64 fields,
	// or forbids (false) it -- in which case a declared size or the
	// computed local-header offset exceeding 32 bits fails with a range
	// error. Nil auto-detects from declared sizes and the offset.
	ZIP64 *bool
}

// Writer creates a streaming archive one entry at a time, emitting local
// headers, compressed payload, optional data descriptors, a central
// directory, and a trailer, in that order, to a caller-supplied sink. See
// spec.md §4.15.
//
// A Writer is safe for concurrent AddFile/Finalize calls: an internal
// semaphore of value 1 serializes them so the output byte stream stays
// well formed, matching spec.md's concurrency model (§5).
type Writer struct {
	sem            *Semaphore
	rb             *RingBuffer
	g              *errgroup.Group
	ctx            context.Context
	cancel         context.CancelFunc
	compressors    map[uint16]Compressor
	startingOffset uint64

	offset  uint64
	entries []writerEntry
	state   writerState
}

// writerEntry pairs a finished directory entry with the ZIP64 decision
// made for it at addFile time, needed again when finalize re-serializes
// the central directory.
type writerEntry struct {
	header *DirectoryEntry
	zip64  bool
}

// WriterOption configures NewWriter.
type WriterOption func(*Writer)

// WithCompressors overrides the default Store/Deflate compressor table.
func WithCompressors(c map[uint16]Compressor) WriterOption {
	return func(w *Writer) { w.compressors = c }
}

// WithHighWaterMark overrides the bounded buffer's default ~40 KiB
// threshold.
func WithHighWaterMark(n int) WriterOption {
	return func(w *Writer) { w.rb = NewRingBuffer(n) }
}

// WithStartingOffset adds n to every local-header offset this Writer
// records, so the produced archive may be embedded inside another
// container starting at byte n.
func WithStartingOffset(n uint64) WriterOption {
	return func(w *Writer) { w.startingOffset = n }
}

// NewWriter constructs a Writer that drains its bounded buffer into sink
// on a background goroutine supervised by an errgroup, the way
// buildbarn-bb-storage supervises producer/consumer goroutine pairs. Per
// spec.md §5, every suspension point -- the semaphore acquire in
// AddFile/Finalize and the bounded-buffer write in pushChunk -- is
// cancellable: a sink write failure aborts the ring buffer and cancels the
// errgroup's context so nothing is left blocked waiting on either.
func NewWriter(sink io.Writer, opts ...WriterOption) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	w := &Writer{
		sem:         NewSemaphore(1),
		rb:          NewRingBuffer(defaultHighWaterMark),
		g:           g,
		ctx:         gctx,
		cancel:      cancel,
		compressors: DefaultCompressors(),
	}
	for _, opt := range opts {
		opt(w)
	}

	g.Go(func() error {
		_, err := io.Copy(sink, w.rb.Reader())
		if err != nil {
			// Unblock any pushChunk currently waiting on the high-water mark
			// (or any future one) with this error instead of letting it
			// block forever once the drain side has stopped reading.
			w.rb.Abort(err)
			cancel()
		}
		return err
	})
	return w
}

// pushChunk enqueues data onto the bounded buffer, blocking under
// backpressure, and advances the writer's logical output offset. Because
// AddFile/Finalize are serialized by sem, offset always reflects exactly
// what this Writer has produced so far, independent of how much the
// background drain goroutine has actually flushed to sink.
func (w *Writer) pushChunk(data []byte) error {
	if err := w.rb.Write(data); err != nil {
		return err
	}
	w.offset += uint64(len(data))
	return nil
}

type chunkWriter struct{ w *Writer }

func (c chunkWriter) Write(p []byte) (int, error) {
	if err := c.w.pushChunk(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// AddFile writes one archive member following the policy of spec.md
// §4.15: resolve attributes, decide data-descriptor/UTF-8/ZIP64 usage,
// compute the minimum version-needed, emit the local header, stream
// content through the compressor, optionally emit a data descriptor, and
// record a directory entry for Finalize. content may be nil for a
// directory (or any zero-length entry); declared may be the zero Declared
// value if nothing was pre-computed.
func (w *Writer) AddFile(name string, opts EntryOptions, content io.Reader, declared Declared) (*DirectoryEntry, error) {
	var result *DirectoryEntry
	err := w.sem.Synchronize(w.ctx, func() error {
		e, err := w.addFileLocked(name, opts, content, declared)
		result = e
		return err
	})
	return result, err
}

func (w *Writer) addFileLocked(name string, opts EntryOptions, content io.Reader, declared Declared) (*DirectoryEntry, error) {
	if w.state != writerWritingFiles {
		return nil, newErr(ErrFormat, "addFile called outside the writing-files state")
	}

	isDir := strings.HasSuffix(name, "/")
	if isDir {
		content = nil
		declared = Declared{HasCRC32: true, HasCompressedSize: true, HasUncompressedSize: true}
	}
	if content == nil {
		content = bytes.NewReader(nil)
	}

	localHeaderOffset := w.startingOffset + w.offset

	var attrs Attributes
	var platform Platform
	if opts.Attributes != nil {
		attrs = *opts.Attributes
		platform = attrs.Platform()
	} else {
		attrs = DefaultAttributes(isDir)
		platform = attrs.Platform()
	}
	if opts.Platform != 0 {
		platform = opts.Platform
	}

	useDataDescriptor := !(declared.HasCRC32 && declared.HasCompressedSize && declared.HasUncompressedSize)

	validName, reqName := detectUTF8RequiresFlag(name)
	validComment, reqComment := detectUTF8RequiresFlag(opts.Comment)
	if !validName || !validComment {
		return nil, newErr(ErrEncoding, "entry name or comment is not valid UTF-8")
	}
	needUTF8 := reqName || reqComment
	useUTF8 := needUTF8
	if opts.UTF8 != nil {
		if !*opts.UTF8 && (!isCP437Encodable(name) || !isCP437Encodable(opts.Comment)) {
			return nil, newErr(ErrEncoding, "utf8 disabled but name or comment is not CP437-encodable")
		}
		useUTF8 = *opts.UTF8
	}

	zip64Needed := localHeaderOffset > uint32max
	if declared.HasCompressedSize && declared.CompressedSize > uint32max {
		zip64Needed = true
	}
	if declared.HasUncompressedSize && declared.UncompressedSize > uint32max {
		zip64Needed = true
	}
	useZip64 := zip64Needed
	if opts.ZIP64 != nil {
		if !*opts.ZIP64 && zip64Needed {
			return nil, newErr(ErrRange, "zip64 disabled but a declared size or offset exceeds 32 bits")
		}
		useZip64 = *opts.ZIP64
	}

	versionNeeded := uint16(zipVersionDeflate)
	if useUTF8 && zipVersionUTF8 > versionNeeded {
		versionNeeded = zipVersionUTF8
	}
	if useZip64 && zipVersion45 > versionNeeded {
		versionNeeded = zipVersion45
	}
	if opts.VersionNeeded != 0 {
		if opts.VersionNeeded < versionNeeded {
			return nil, newErr(ErrVersionTooLow, "supplied version-needed is below the minimum implied by this entry's features")
		}
		versionNeeded = opts.VersionNeeded
	}

	flags := Flags(0).WithDataDescriptor(useDataDescriptor).WithUTF8(useUTF8)
	modified := opts.Modified
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	local := &LocalEntry{
		Name:             name,
		Modified:         modified,
		CRC32:            declared.CRC32,
		CompressedSize:   declared.CompressedSize,
		UncompressedSize: declared.UncompressedSize,
		Method:           opts.Method,
		Flags:            flags,
		VersionNeeded:    versionNeeded,
	}
	localBytes, err := serializeLocalHeader(local, localHeaderPlan{
		useZip64:          useZip64,
		useDataDescriptor: useDataDescriptor,
		versionNeeded:     versionNeeded,
	})
	if err != nil {
		return nil, err
	}
	if err := w.pushChunk(localBytes); err != nil {
		return nil, err
	}

	crc32Val, compressedSize, uncompressedSize, err := CompressStream(opts.Method, w.compressors, chunkWriter{w}, content, declared)
	if err != nil {
		return nil, err
	}
	if !useZip64 && (compressedSize > uint32max || uncompressedSize > uint32max) {
		return nil, newErr(ErrRange, "measured entry size exceeds 32 bits but zip64 was not enabled for this entry")
	}

	if useDataDescriptor {
		descriptor := serializeDataDescriptor(crc32Val, compressedSize, uncompressedSize, useZip64)
		if err := w.pushChunk(descriptor); err != nil {
			return nil, err
		}
	}

	header := &DirectoryEntry{
		Name:              name,
		Comment:           opts.Comment,
		Modified:          modified,
		CRC32:             crc32Val,
		CompressedSize:    compressedSize,
		UncompressedSize:  uncompressedSize,
		Method:            opts.Method,
		Flags:             flags,
		Platform:          platform,
		Attributes:        attrs,
		VersionMadeBy:     opts.VersionMadeBy,
		VersionNeeded:     versionNeeded,
		LocalHeaderOffset: localHeaderOffset,
	}
	w.entries = append(w.entries, writerEntry{header: header, zip64: useZip64})
	return header, nil
}

// Finalize emits the central directory and trailer, ends the bounded
// buffer, and waits for the background drain goroutine to finish writing
// to the sink. A Writer cannot be used again afterward.
func (w *Writer) Finalize(comment string) error {
	err := w.sem.Synchronize(w.ctx, func() error {
		return w.finalizeLocked(comment)
	})
	if err != nil {
		w.cancel()
		return err
	}
	return w.g.Wait()
}

func (w *Writer) finalizeLocked(comment string) error {
	if w.state != writerWritingFiles {
		return newErr(ErrFormat, "finalize called outside the writing-files state")
	}
	w.state = writerFinalizing

	directoryOffset := w.startingOffset + w.offset
	anyZip64 := false
	for _, e := range w.entries {
		centralBytes, err := serializeCentralHeader(e.header, e.zip64)
		if err != nil {
			return err
		}
		if err := w.pushChunk(centralBytes); err != nil {
			return err
		}
		if e.zip64 {
			anyZip64 = true
		}
	}
	directorySize := (w.startingOffset + w.offset) - directoryOffset

	useZip64 := len(w.entries) > 0xFFFE || anyZip64 || directoryOffset >= uint32max
	trailerBytes, err := serializeTrailer(uint64(len(w.entries)), directoryOffset, directorySize, comment, useZip64)
	if err != nil {
		return err
	}
	if err := w.pushChunk(trailerBytes); err != nil {
		return err
	}

	w.rb.End()
	w.state = writerDone
	return nil
}
