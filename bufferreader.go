package zipkit

import (
	"bytes"
	"io"
)

// BufferReader consumes a whole archive already held in memory. It locates
// and parses the trailer purely from the slice (no I/O), then walks the
// central directory synchronously, one entry per Next call. See spec.md
// §4.13.
//
// Because the whole archive is already resident, a BufferReader never
// blocks and needs no bounded buffer or semaphore: this is the degenerate,
// entirely-synchronous case spec.md calls out explicitly ("Synchronous
// iteration is exposed in addition to async for callers that can assume
// decompression is synchronous").
type BufferReader struct {
	data          []byte
	trailer       *Trailer
	decompressors map[uint16]Decompressor

	cursor int64
	index  uint64
}

// NewBufferReader parses data's trailer and prepares to walk its central
// directory. decompressors may be nil, in which case DefaultDecompressors
// is used.
func NewBufferReader(data []byte, decompressors map[uint16]Decompressor) (*BufferReader, error) {
	trailer, err := LocateTrailer(data, 0)
	if err != nil {
		if _, ok := err.(*NeedMoreBytesError); ok {
			return nil, wrapErr(ErrFormat, "zip64 end of central directory record lies outside the supplied data", err)
		}
		return nil, err
	}
	if decompressors == nil {
		decompressors = DefaultDecompressors()
	}
	return &BufferReader{
		data:          data,
		trailer:       trailer,
		decompressors: decompressors,
		cursor:        int64(trailer.DirectoryOffset),
	}, nil
}

// Trailer returns the parsed archive-level summary.
func (r *BufferReader) Trailer() *Trailer { return r.trailer }

// Next parses and returns the next central directory entry, in directory
// order. It returns io.EOF once EntryCount entries have been produced.
func (r *BufferReader) Next() (*Entry, error) {
	if r.index >= r.trailer.EntryCount {
		return nil, io.EOF
	}
	if r.cursor < 0 || r.cursor > int64(len(r.data)) {
		return nil, wrapErr(ErrFormat, "central directory cursor out of range", nil)
	}

	header, total, err := parseCentralHeader(r.data[r.cursor:])
	if err != nil {
		return nil, err
	}
	r.cursor += int64(total)
	r.index++

	entry := newEntry(header, func() (io.ReadCloser, error) {
		return r.openContent(header)
	})
	return entry, nil
}

// All drains every remaining entry synchronously.
func (r *BufferReader) All() ([]*Entry, error) {
	var entries []*Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

// openContent slices the compressed payload out of data using the local
// header only to discover where the payload begins -- the central
// directory's sizes are authoritative, per spec.md §4.13.
func (r *BufferReader) openContent(header *DirectoryEntry) (io.ReadCloser, error) {
	localOff := int64(header.LocalHeaderOffset)
	if localOff < 0 || localOff+localHeaderFixedLen > int64(len(r.data)) {
		return nil, wrapErr(ErrFormat, "local file header offset out of range", nil)
	}
	prefix, err := peekLocalHeaderPrefix(r.data[localOff:])
	if err != nil {
		return nil, err
	}
	payloadStart := localOff + int64(prefix.TotalLen())
	payloadEnd := payloadStart + int64(header.CompressedSize)
	if payloadStart < 0 || payloadEnd > int64(len(r.data)) {
		return nil, wrapErr(ErrFormat, "entry payload out of range", nil)
	}
	src := bytes.NewReader(r.data[payloadStart:payloadEnd])
	return DecompressStream(header.Method, r.decompressors, src, header.CRC32, header.UncompressedSize)
}
