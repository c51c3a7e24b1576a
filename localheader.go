package zipkit

import "time"

const (
	localHeaderSignature      = 0x04034b50
	localHeaderFixedLen       = 30
	dataDescriptorSignature   = 0x08074b50
	dataDescriptorLen32       = 16 // signature + crc32 + 2x uint32
	dataDescriptorLen64       = 24 // signature + crc32 + 2x uint64
)

// LocalEntry is the per-file record at its archive offset: the fields the
// local file header and optional data descriptor carry, excluding the
// platform/attributes fields that only the central directory header
// carries. See spec.md §3 "Local entry".
type LocalEntry struct {
	Name               string
	Modified           time.Time
	CRC32              uint32
	CompressedSize     uint64
	UncompressedSize   uint64
	Method             uint16
	Flags              Flags
	VersionNeeded      uint16
	Extra              []byte
}

// localHeaderPrefix is the fixed-size part of a local file header, parsed
// without resolving the variable-length name/extra tail.
type localHeaderPrefix struct {
	versionNeeded    uint16
	flags            Flags
	method           uint16
	modTime, modDate uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLen          int
	extraLen         int
}

// peekLocalHeaderPrefix parses the fixed 30-byte local header prefix from
// data, which must hold at least that many bytes. Callers that only need
// to know how many bytes to skip (readers trusting the central directory
// for real sizes, per spec.md §4.7) can use TotalLen once Name/Extra
// lengths are known.
func peekLocalHeaderPrefix(data []byte) (localHeaderPrefix, error) {
	var p localHeaderPrefix
	v := newView(data)
	sig, err := v.uint32At(0)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated local file header", err)
	}
	if sig != localHeaderSignature {
		return p, newErrAt(ErrSignature, 0, "local file header signature mismatch")
	}
	p.versionNeeded, _ = v.uint16At(4)
	flagsRaw, _ := v.uint16At(6)
	p.flags = Flags(flagsRaw)
	p.method, _ = v.uint16At(8)
	p.modTime, _ = v.uint16At(10)
	p.modDate, _ = v.uint16At(12)
	p.crc32, _ = v.uint32At(14)
	p.compressedSize, _ = v.uint32At(18)
	p.uncompressedSize, _ = v.uint32At(22)
	nameLen, err := v.uint16At(26)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated local file header", err)
	}
	extraLen, err := v.uint16At(28)
	if err != nil {
		return p, wrapErr(ErrFormat, "truncated local file header", err)
	}
	p.nameLen = int(nameLen)
	p.extraLen = int(extraLen)
	return p, nil
}

// TotalLen is the full byte length of the local header including its
// variable-length name and extra field.
func (p localHeaderPrefix) TotalLen() int { return localHeaderFixedLen + p.nameLen + p.extraLen }

// parseLocalHeader fully decodes a local header (prefix + name + extra)
// from data, which must contain at least the header's TotalLen bytes. Per
// spec.md §4.7, the crc/size fields returned here are whatever the header
// claims; callers streaming from an untrusted local header (as opposed to
// the central directory) must treat them as provisional when the
// data-descriptor flag is set.
func parseLocalHeader(data []byte) (*LocalEntry, int, error) {
	prefix, err := peekLocalHeaderPrefix(data)
	if err != nil {
		return nil, 0, err
	}
	total := prefix.TotalLen()
	if len(data) < total {
		return nil, 0, wrapErr(ErrFormat, "truncated local file header tail", nil)
	}
	rawName := data[localHeaderFixedLen : localHeaderFixedLen+prefix.nameLen]
	rawExtra := data[localHeaderFixedLen+prefix.nameLen : total]

	records, err := parseExtraFields(rawExtra)
	if err != nil {
		return nil, 0, err
	}

	name, _ := resolvePathAndComment(rawName, nil, prefix.flags, records)
	modified := fromDosDateTime(prefix.modDate, prefix.modTime)
	if payload, ok := findExtra(records, extTimeExtraID); ok {
		if t, ok := decodeExtendedTimestamp(payload); ok {
			modified = t
		}
	}

	needU := prefix.uncompressedSize == 0xFFFFFFFF
	needC := prefix.compressedSize == 0xFFFFFFFF
	crc32Val := prefix.crc32
	compressedSize := uint64(prefix.compressedSize)
	uncompressedSize := uint64(prefix.uncompressedSize)
	if payload, ok := findExtra(records, zip64ExtraID); ok && (needU || needC) {
		z, err := parseZip64Extra(payload, needU, needC, false, false)
		if err != nil {
			return nil, 0, err
		}
		if z.hasUncompressed {
			uncompressedSize = z.uncompressedSize
		}
		if z.hasCompressed {
			compressedSize = z.compressedSize
		}
	}

	e := &LocalEntry{
		Name:             name,
		Modified:         modified,
		CRC32:            crc32Val,
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		Method:           prefix.method,
		Flags:            prefix.flags,
		VersionNeeded:    prefix.versionNeeded,
		Extra:            rawExtra,
	}
	return e, total, nil
}

// localHeaderPlan carries the decisions the writer makes once per entry
// about ZIP64/data-descriptor usage, shared between the local header and
// eventual central header emission.
type localHeaderPlan struct {
	useZip64         bool
	useDataDescriptor bool
	versionNeeded    uint16
}

// serializeLocalHeader emits a local file header for e, following
// spec.md §4.7's three cases for the crc/size fields:
//
//   - ZIP64 requested: header slots are 0xFFFFFFFF and a synthesized ZIP64
//     extra field holds the real sizes (zeroed if a data descriptor will
//     also carry them).
//   - Data descriptor only: header crc and both sizes are zero.
//   - Neither: header slots hold the exact values.
//
// Whenever plan uses a data descriptor, the emitted flags carry the
// data-descriptor bit even if e.Flags does not.
func serializeLocalHeader(e *LocalEntry, plan localHeaderPlan) ([]byte, error) {
	nameBytes, err := encodeNameOrComment(e.Name, e.Flags)
	if err != nil {
		return nil, err
	}
	if len(nameBytes) > 0xFFFF {
		return nil, newErr(ErrRange, "entry name too long")
	}

	extra := append([]byte(nil), e.Extra...)
	extra = append(extra, encodeExtendedTimestamp(e.Modified)...)

	flags := e.Flags
	if plan.useDataDescriptor {
		flags = flags.WithDataDescriptor(true)
	}

	var crc32Field, compressedField, uncompressedField uint32
	switch {
	case plan.useZip64:
		crc32Field = 0 // zero when a data descriptor carries the crc; set below otherwise
		compressedField = 0xFFFFFFFF
		uncompressedField = 0xFFFFFFFF
		z := zip64Fields{hasUncompressed: true, hasCompressed: true}
		if plan.useDataDescriptor {
			// Real sizes are unknown yet; the ZIP64 extra carries zero and
			// the 64-bit data descriptor carries the truth, per spec.md §4.7.
			z.uncompressedSize, z.compressedSize = 0, 0
		} else {
			z.uncompressedSize, z.compressedSize = e.UncompressedSize, e.CompressedSize
			crc32Field = e.CRC32
		}
		extra = append(extra, serializeExtraRecord(serializeZip64Extra(z))...)
	case plan.useDataDescriptor:
		crc32Field, compressedField, uncompressedField = 0, 0, 0
	default:
		crc32Field = e.CRC32
		compressedField = uint32(e.CompressedSize)
		uncompressedField = uint32(e.UncompressedSize)
	}

	if len(extra) > 0xFFFF {
		return nil, newErr(ErrRange, "entry extra field too long")
	}

	modDate, modTime := toDosDateTime(e.Modified)
	w := newBuildBuf(localHeaderFixedLen + len(nameBytes) + len(extra))
	w.uint32(localHeaderSignature)
	w.uint16(plan.versionNeeded)
	w.uint16(uint16(flags))
	w.uint16(e.Method)
	w.uint16(modTime)
	w.uint16(modDate)
	w.uint32(crc32Field)
	w.uint32(compressedField)
	w.uint32(uncompressedField)
	w.uint16(uint16(len(nameBytes)))
	w.uint16(uint16(len(extra)))
	w.bytes(nameBytes)
	w.bytes(extra)
	return w.Bytes(), nil
}

// encodeNameOrComment renders s as the bytes a header field should carry:
// UTF-8 directly when flags' UTF-8 bit is set, otherwise CP437, per
// spec.md §4.6's encoding policy.
func encodeNameOrComment(s string, flags Flags) ([]byte, error) {
	if flags.HasUTF8() {
		return []byte(s), nil
	}
	return cp437Encode(s)
}

func serializeExtraRecord(r ExtraRecord) []byte {
	w := newBuildBuf(4 + len(r.Data))
	w.uint16(r.Tag)
	w.uint16(uint16(len(r.Data)))
	w.bytes(r.Data)
	return w.Bytes()
}

// serializeDataDescriptor emits a trailing data-descriptor record: 16 bytes
// (signature, crc32, 2x uint32) unless zip64 is true, in which case the
// sizes are 8 bytes each (24 bytes total).
func serializeDataDescriptor(crc32 uint32, compressedSize, uncompressedSize uint64, zip64 bool) []byte {
	if zip64 {
		w := newBuildBuf(dataDescriptorLen64)
		w.uint32(dataDescriptorSignature)
		w.uint32(crc32)
		w.uint64(compressedSize)
		w.uint64(uncompressedSize)
		return w.Bytes()
	}
	w := newBuildBuf(dataDescriptorLen32)
	w.uint32(dataDescriptorSignature)
	w.uint32(crc32)
	w.uint32(uint32(compressedSize))
	w.uint32(uint32(uncompressedSize))
	return w.Bytes()
}

// parseDataDescriptor decodes a data descriptor record from data, which
// must hold at least dataDescriptorLen32 (or dataDescriptorLen64 if zip64)
// bytes. The leading signature is required.
func parseDataDescriptor(data []byte, zip64 bool) (crc32 uint32, compressedSize, uncompressedSize uint64, err error) {
	v := newView(data)
	sig, err := v.uint32At(0)
	if err != nil {
		return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
	}
	if sig != dataDescriptorSignature {
		return 0, 0, 0, newErrAt(ErrSignature, 0, "data descriptor signature mismatch")
	}
	crc32, err = v.uint32At(4)
	if err != nil {
		return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
	}
	if zip64 {
		c, err := v.uint64At(8)
		if err != nil {
			return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
		}
		u, err := v.uint64At(16)
		if err != nil {
			return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
		}
		return crc32, c, u, nil
	}
	c, err := v.uint32At(8)
	if err != nil {
		return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
	}
	u, err := v.uint32At(12)
	if err != nil {
		return 0, 0, 0, wrapErr(ErrFormat, "truncated data descriptor", err)
	}
	return crc32, uint64(c), uint64(u), nil
}
