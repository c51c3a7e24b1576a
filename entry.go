package zipkit

import (
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Entry is a lazily-materialized handle combining a DirectoryEntry's
// metadata with a not-yet-consumed stream of its uncompressed content.
// The content is single-shot: Open may be called at most once. See
// spec.md §3 "Entry reader" and §4.16.
type Entry struct {
	Header *DirectoryEntry

	mu     sync.Mutex
	opened bool
	open   func() (io.ReadCloser, error)
}

// newEntry builds an Entry whose content is produced on demand by open.
func newEntry(header *DirectoryEntry, open func() (io.ReadCloser, error)) *Entry {
	return &Entry{Header: header, open: open}
}

// Open returns the entry's uncompressed byte stream. It fails if called
// more than once: the underlying stream drains as it is read and cannot be
// rewound.
func (e *Entry) Open() (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened {
		return nil, newErr(ErrFormat, "entry content already consumed")
	}
	e.opened = true
	return e.open()
}

// Bytes fully buffers the entry's uncompressed content.
func (e *Entry) Bytes() ([]byte, error) {
	r, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Text decodes the entry's uncompressed content as text. With no decode
// function supplied, it is interpreted as UTF-8 (validated, per spec.md
// §4.16's "decode-as-text, default UTF-8"); otherwise decode is applied to
// the buffered bytes.
func (e *Entry) Text(decode ...func([]byte) (string, error)) (string, error) {
	b, err := e.Bytes()
	if err != nil {
		return "", err
	}
	if len(decode) > 0 {
		return decode[0](b)
	}
	if !utf8.Valid(b) {
		return "", newErr(ErrEncoding, "entry content is not valid UTF-8")
	}
	return string(b), nil
}

// FileInfo adapts the entry's DirectoryEntry to os.FileInfo, for code that
// wants to treat archive members like filesystem entries.
func (e *Entry) FileInfo() os.FileInfo { return e.Header.FileInfo() }

// directoryEntryFileInfo implements os.FileInfo over a *DirectoryEntry.
type directoryEntryFileInfo struct {
	e *DirectoryEntry
}

func (fi directoryEntryFileInfo) Name() string       { return path.Base(fi.e.Name) }
func (fi directoryEntryFileInfo) Size() int64        { return int64(fi.e.UncompressedSize) }
func (fi directoryEntryFileInfo) IsDir() bool        { return fi.e.IsDirectory() }
func (fi directoryEntryFileInfo) ModTime() time.Time { return fi.e.Modified }
func (fi directoryEntryFileInfo) Sys() interface{}   { return fi.e }

func (fi directoryEntryFileInfo) Mode() os.FileMode {
	var mode os.FileMode
	if fi.e.IsDirectory() {
		mode |= os.ModeDir
	}
	switch fi.e.Attributes.Platform() {
	case PlatformUnix:
		mode |= os.FileMode(fi.e.Attributes.RawValue()>>16) & 0o777
	}
	if fi.e.Attributes.IsReadOnly() {
		mode &^= 0o222
	} else if mode&0o700 == 0 {
		mode |= 0o644
		if fi.e.IsDirectory() {
			mode |= 0o755
		}
	}
	return mode
}

// FileInfo adapts e to os.FileInfo.
func (e *DirectoryEntry) FileInfo() os.FileInfo { return directoryEntryFileInfo{e: e} }

// HeaderFromFileInfo builds a partially-populated DirectoryEntry from an
// os.FileInfo, the way a caller preparing to add a filesystem entry to a
// Writer typically starts. Because os.FileInfo's Name returns only the
// base name, callers usually need to overwrite Name with the full relative
// archive path afterward.
func HeaderFromFileInfo(fi os.FileInfo) *DirectoryEntry {
	name := fi.Name()
	if fi.IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	e := &DirectoryEntry{
		Name:             name,
		UncompressedSize: uint64(fi.Size()),
		Modified:         fi.ModTime(),
	}
	mode := fi.Mode()
	unixMode := uint16(mode.Perm())
	if mode.IsDir() {
		unixMode |= unixTypeDir
	} else {
		unixMode |= unixTypeFile
	}
	e.Platform = PlatformUnix
	e.Attributes = NewUnixAttributes(unixMode)
	return e
}
