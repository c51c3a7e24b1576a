package zipkit

import (
	"io"
	"sync"
)

// sizedItem is one queued item in a RingBuffer: a byte chunk together with
// the "size" that counts against the high-water mark. For this package's
// own use that size is always len(Data), but the type keeps the queue
// generic the way spec.md §4.11 describes it.
type sizedItem struct {
	Data []byte
	Size int
}

// RingBuffer is a cooperative single-producer/single-consumer queue of
// byte chunks, bounded by a high-water mark on pending bytes, used by
// Writer to decouple "producing entry content" from "draining compressed
// bytes to the caller's sink" without letting an unbounded amount of
// output pile up in memory. See spec.md §4.11.
//
// A RingBuffer is safe for exactly one writer goroutine and one reader
// goroutine to use concurrently; it is not safe for multiple writers or
// multiple readers.
type RingBuffer struct {
	mu            sync.Mutex
	cond          *sync.Cond
	items         []sizedItem
	pending       int
	highWaterMark int
	written       uint64
	ended         bool
	err           error
}

// NewRingBuffer constructs a RingBuffer with the given high-water mark, in
// bytes. A mark of 0 still allows single large items through (see Write).
func NewRingBuffer(highWaterMark int) *RingBuffer {
	b := &RingBuffer{highWaterMark: highWaterMark}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write enqueues data, blocking the caller until the buffer's pending size
// is below the high-water mark. An item is always eventually accepted even
// if it alone exceeds the mark -- backpressure exists but can never
// deadlock a lone oversized chunk, per spec.md §4.11.
//
// Write returns BufferAbortedErr-wrapping the abort error if Abort was
// called, or a FormatError if the buffer has already been ended.
func (b *RingBuffer) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.pending >= b.highWaterMark && b.pending > 0 && b.err == nil && !b.ended {
		b.cond.Wait()
	}
	if b.err != nil {
		return wrapErr(ErrBufferAborted, "ring buffer aborted", b.err)
	}
	if b.ended {
		return newErr(ErrFormat, "write after ring buffer end")
	}

	item := sizedItem{Data: append([]byte(nil), data...), Size: len(data)}
	b.items = append(b.items, item)
	b.pending += item.Size
	b.written += uint64(item.Size)
	b.cond.Broadcast()
	return nil
}

// Read returns the next queued chunk, blocking while the queue is empty
// and the buffer has not ended. ok is false once the queue has drained and
// End was called (clean end-of-stream) or Abort was called (err is then
// non-nil).
func (b *RingBuffer) Read() (data []byte, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && b.err == nil && !b.ended {
		b.cond.Wait()
	}
	if len(b.items) > 0 {
		item := b.items[0]
		b.items = b.items[1:]
		b.pending -= item.Size
		b.cond.Broadcast()
		return item.Data, true, nil
	}
	if b.err != nil {
		return nil, false, wrapErr(ErrBufferAborted, "ring buffer aborted", b.err)
	}
	return nil, false, nil
}

// End marks the buffer terminal: subsequent Write calls fail, but pending
// and future Reads continue to drain whatever remains before observing
// end-of-stream.
func (b *RingBuffer) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	b.cond.Broadcast()
}

// Abort propagates err to every pending and future Write/Read call and
// makes Ended report true.
func (b *RingBuffer) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
	b.ended = true
	b.cond.Broadcast()
}

// Ended reports whether End or Abort has been called.
func (b *RingBuffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Err returns the error passed to Abort, if any.
func (b *RingBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Written returns the cumulative number of bytes accepted by Write.
func (b *RingBuffer) Written() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Reader returns an io.Reader that drains b chunk by chunk, returning
// io.EOF once End has been observed and the queue is empty, or the Abort
// error otherwise.
func (b *RingBuffer) Reader() io.Reader { return &ringBufferReader{rb: b} }

type ringBufferReader struct {
	rb  *RingBuffer
	buf []byte
}

func (r *ringBufferReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		data, ok, err := r.rb.Read()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
