package zipkit

import (
	"strings"
	"time"
)

const (
	centralHeaderSignature = 0x02014b50
	centralHeaderFixedLen  = 46
)

// DirectoryEntry is one file's record in the central directory: the
// complete, authoritative metadata for an archive member. See spec.md §3
// "Directory entry".
type DirectoryEntry struct {
	Name              string
	Comment           string
	Modified          time.Time
	CRC32             uint32
	CompressedSize    uint64
	UncompressedSize  uint64
	Method            uint16
	Flags             Flags
	Platform          Platform
	Attributes        Attributes
	VersionMadeBy     uint16
	VersionNeeded     uint16
	LocalHeaderOffset uint64
	Extra             []byte
}

// IsDirectory reports whether the entry represents a directory: its path
// ends in "/" or its attributes say so, per spec.md §3's invariant.
func (e *DirectoryEntry) IsDirectory() bool {
	if strings.HasSuffix(e.Name, "/") {
		return true
	}
	return e.Attributes.IsDirectory()
}

// IsFile reports whether the entry represents a regular file, with the
// three-valued outcome spec.md §9 asks for: known is false when the
// attribute encoding cannot tell file apart from some other non-directory
// type.
func (e *DirectoryEntry) IsFile() (isFile bool, known bool) {
	if e.IsDirectory() {
		return false, true
	}
	return e.Attributes.IsFile()
}

// centralHeaderPrefix is the fixed 46-byte part of a central directory
// header.
type centralHeaderPrefix struct {
	versionMadeBy    uint16
	versionNeeded    uint16
	flags            Flags
	method           uint16
	modTime, modDate uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLen          int
	extraLen         int
	commentLen       int
	diskNumberStart  uint16
	internalAttrs    uint16
	externalAttrs    uint32
	localHeaderOff   uint32
}

// TotalLen is this header's full byte length including the variable-length
// name, extra, and comment fields.
func (p centralHeaderPrefix) TotalLen() int {
	return centralHeaderFixedLen + p.nameLen + p.extraLen + p.commentLen
}

// peekCentralHeaderPrefix parses the fixed 46-byte prefix, which must be
// fully present in data; the variable-length tail is not required yet.
func peekCentralHeaderPrefix(data []byte) (centralHeaderPrefix, error) {
	var p centralHeaderPrefix
	v := newView(data)
	sig, err := v.uint32At(0)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated central directory header", err)
	}
	if sig != centralHeaderSignature {
		return p, newErrAt(ErrSignature, 0, "central directory header signature mismatch")
	}
	p.versionMadeBy, _ = v.uint16At(4)
	p.versionNeeded, _ = v.uint16At(6)
	flagsRaw, _ := v.uint16At(8)
	p.flags = Flags(flagsRaw)
	p.method, _ = v.uint16At(10)
	p.modTime, _ = v.uint16At(12)
	p.modDate, _ = v.uint16At(14)
	p.crc32, _ = v.uint32At(16)
	p.compressedSize, _ = v.uint32At(20)
	p.uncompressedSize, _ = v.uint32At(24)
	nameLen, err := v.uint16At(28)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated central directory header", err)
	}
	extraLen, err := v.uint16At(30)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated central directory header", err)
	}
	commentLen, err := v.uint16At(32)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated central directory header", err)
	}
	p.nameLen = int(nameLen)
	p.extraLen = int(extraLen)
	p.commentLen = int(commentLen)
	p.diskNumberStart, _ = v.uint16At(34)
	p.internalAttrs, _ = v.uint16At(36)
	p.externalAttrs, _ = v.uint32At(38)
	p.localHeaderOff, _ = v.uint32At(42)
	return p, nil
}

// parseCentralHeader fully decodes a central directory header from data,
// which must contain at least the header's TotalLen bytes.
func parseCentralHeader(data []byte) (*DirectoryEntry, int, error) {
	prefix, err := peekCentralHeaderPrefix(data)
	if err != nil {
		return nil, 0, err
	}
	total := prefix.TotalLen()
	if len(data) < total {
		return nil, 0, wrapErr(ErrFormat, "truncated central directory header tail", nil)
	}

	// Disk-number-start must be 0, or 0xFFFF when ZIP64 supplies the real
	// value -- which this package always treats as 0, per spec.md §4.8.
	if prefix.diskNumberStart != 0 && prefix.diskNumberStart != 0xFFFF {
		return nil, 0, newErr(ErrMultiDisk, "central directory header disk-number-start is nonzero")
	}

	nameStart := centralHeaderFixedLen
	rawName := data[nameStart : nameStart+prefix.nameLen]
	extraStart := nameStart + prefix.nameLen
	rawExtra := data[extraStart : extraStart+prefix.extraLen]
	commentStart := extraStart + prefix.extraLen
	rawComment := data[commentStart : commentStart+prefix.commentLen]

	records, err := parseExtraFields(rawExtra)
	if err != nil {
		return nil, 0, err
	}

	name, comment := resolvePathAndComment(rawName, rawComment, prefix.flags, records)
	modified := fromDosDateTime(prefix.modDate, prefix.modTime)
	if payload, ok := findExtra(records, extTimeExtraID); ok {
		if t, ok := decodeExtendedTimestamp(payload); ok {
			modified = t
		}
	}

	platform := Platform(prefix.versionMadeBy >> 8)
	attrs, err := attributesFromExternal(platform, prefix.externalAttrs)
	if err != nil {
		return nil, 0, err
	}

	needU := prefix.uncompressedSize == 0xFFFFFFFF
	needC := prefix.compressedSize == 0xFFFFFFFF
	needOff := prefix.localHeaderOff == 0xFFFFFFFF
	compressedSize := uint64(prefix.compressedSize)
	uncompressedSize := uint64(prefix.uncompressedSize)
	localOffset := uint64(prefix.localHeaderOff)
	if payload, ok := findExtra(records, zip64ExtraID); ok && (needU || needC || needOff) {
		z, err := parseZip64Extra(payload, needU, needC, needOff, false)
		if err != nil {
			return nil, 0, err
		}
		if z.hasUncompressed {
			uncompressedSize = z.uncompressedSize
		}
		if z.hasCompressed {
			compressedSize = z.compressedSize
		}
		if z.hasOffset {
			localOffset = z.localHeaderOffset
		}
	}

	e := &DirectoryEntry{
		Name:              name,
		Comment:           comment,
		Modified:          modified,
		CRC32:             prefix.crc32,
		CompressedSize:    compressedSize,
		UncompressedSize:  uncompressedSize,
		Method:            prefix.method,
		Flags:             prefix.flags,
		Platform:          platform,
		Attributes:        attrs,
		VersionMadeBy:     prefix.versionMadeBy,
		VersionNeeded:     prefix.versionNeeded,
		LocalHeaderOffset: localOffset,
		Extra:             rawExtra,
	}
	return e, total, nil
}

// serializeCentralHeader emits a central directory header for e, following
// the same ZIP64-sentinel logic as the local header (spec.md §4.8): when
// ZIP64 is requested, the compressed size, uncompressed size, and
// local-header offset fields are all 0xFFFFFFFF and the real values live in
// a freshly synthesized ZIP64 extra field (never pass-through, per spec.md
// §3's Extra-field-collection invariant).
func serializeCentralHeader(e *DirectoryEntry, useZip64 bool) ([]byte, error) {
	nameBytes, err := encodeNameOrComment(e.Name, e.Flags)
	if err != nil {
		return nil, err
	}
	commentBytes, err := encodeNameOrComment(e.Comment, e.Flags)
	if err != nil {
		return nil, err
	}
	if len(nameBytes) > 0xFFFF {
		return nil, newErr(ErrRange, "entry name too long")
	}
	if len(commentBytes) > 0xFFFF {
		return nil, newErr(ErrRange, "entry comment too long")
	}

	extra := withoutExtra(parseExtraOrEmpty(e.Extra), zip64ExtraID)
	extra = withoutExtra(extra, extTimeExtraID)
	extraBytes := serializeExtraFields(extra)
	extraBytes = append(extraBytes, encodeExtendedTimestamp(e.Modified)...)

	var compressedField, uncompressedField, offsetField uint32
	if useZip64 {
		compressedField = 0xFFFFFFFF
		uncompressedField = 0xFFFFFFFF
		offsetField = 0xFFFFFFFF
		z := zip64Fields{
			hasUncompressed: true, uncompressedSize: e.UncompressedSize,
			hasCompressed: true, compressedSize: e.CompressedSize,
			hasOffset: true, localHeaderOffset: e.LocalHeaderOffset,
		}
		extraBytes = append(extraBytes, serializeExtraRecord(serializeZip64Extra(z))...)
	} else {
		compressedField = uint32(e.CompressedSize)
		uncompressedField = uint32(e.UncompressedSize)
		offsetField = uint32(e.LocalHeaderOffset)
	}

	if len(extraBytes) > 0xFFFF {
		return nil, newErr(ErrRange, "entry extra field too long")
	}

	modDate, modTime := toDosDateTime(e.Modified)
	versionMadeBy := uint16(e.Platform)<<8 | e.VersionMadeBy&0xff

	w := newBuildBuf(centralHeaderFixedLen + len(nameBytes) + len(extraBytes) + len(commentBytes))
	w.uint32(centralHeaderSignature)
	w.uint16(versionMadeBy)
	w.uint16(e.VersionNeeded)
	w.uint16(uint16(e.Flags))
	w.uint16(e.Method)
	w.uint16(modTime)
	w.uint16(modDate)
	w.uint32(e.CRC32)
	w.uint32(compressedField)
	w.uint32(uncompressedField)
	w.uint16(uint16(len(nameBytes)))
	w.uint16(uint16(len(extraBytes)))
	w.uint16(uint16(len(commentBytes)))
	w.uint16(0) // disk number start: always 0, no multi-disk support
	w.uint16(0) // internal file attributes: unused
	w.uint32(e.Attributes.RawValue())
	w.uint32(offsetField)
	w.bytes(nameBytes)
	w.bytes(extraBytes)
	w.bytes(commentBytes)
	return w.Bytes(), nil
}

func parseExtraOrEmpty(data []byte) []ExtraRecord {
	records, err := parseExtraFields(data)
	if err != nil {
		return nil
	}
	return records
}
