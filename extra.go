package zipkit

import "hash/crc32"

// Recognized extra-field tags.
const (
	zip64ExtraID       = 0x0001 // ZIP64 extended information
	unicodePathExtraID = 0x7075 // Info-ZIP Unicode Path
	unicodeCmtExtraID  = 0x6375 // Info-ZIP Unicode Comment
)

// ExtraRecord is one (tag, payload) record from a header's extra-field
// blob. Unknown tags are preserved verbatim so round-tripping an archive
// doesn't lose third-party extra data.
type ExtraRecord struct {
	Tag  uint16
	Data []byte
}

// parseExtraFields walks data as a sequence of (tag: u16, size: u16, data:
// size bytes) records. A size that overruns the buffer is a FormatError.
func parseExtraFields(data []byte) ([]ExtraRecord, error) {
	var records []ExtraRecord
	v := newView(data)
	off := 0
	for off < len(data) {
		tag, err := v.uint16At(off)
		if err != nil {
			return nil, wrapErr(ErrFormat, "truncated extra field tag", err)
		}
		size, err := v.uint16At(off + 2)
		if err != nil {
			return nil, wrapErr(ErrFormat, "truncated extra field size", err)
		}
		payload, err := v.sub(off+4, int(size))
		if err != nil {
			return nil, wrapErr(ErrFormat, "extra field payload overruns buffer", err)
		}
		records = append(records, ExtraRecord{Tag: tag, Data: payload})
		off += 4 + int(size)
	}
	return records, nil
}

// serializeExtraFields concatenates records back into a TLV blob.
func serializeExtraFields(records []ExtraRecord) []byte {
	w := newBuildBuf(0)
	for _, r := range records {
		w.uint16(r.Tag)
		w.uint16(uint16(len(r.Data)))
		w.bytes(r.Data)
	}
	return w.Bytes()
}

// findExtra returns the payload of the first record with the given tag, if
// any.
func findExtra(records []ExtraRecord, tag uint16) ([]byte, bool) {
	for _, r := range records {
		if r.Tag == tag {
			return r.Data, true
		}
	}
	return nil, false
}

// withoutExtra returns records with every record of the given tag removed.
func withoutExtra(records []ExtraRecord, tag uint16) []ExtraRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.Tag != tag {
			out = append(out, r)
		}
	}
	return out
}

// zip64Fields holds the subset of ZIP64 extended-information fields that
// are present, per the position-dependent encoding described in spec.md
// §4.6: only the fields whose corresponding 32-bit header slot holds the
// sentinel 0xFFFFFFFF are present, always in the order uncompressed size,
// compressed size, local-header offset, disk-start number.
type zip64Fields struct {
	uncompressedSize  uint64
	hasUncompressed   bool
	compressedSize    uint64
	hasCompressed     bool
	localHeaderOffset uint64
	hasOffset         bool
	diskStart         uint32
	hasDiskStart      bool
}

// parseZip64Extra decodes a ZIP64 extended-information payload, reading
// exactly the fields indicated by want*, in order. A payload too short to
// hold all wanted fields is a FormatError. A nonzero disk-start number is
// rejected as a multi-disk archive.
func parseZip64Extra(data []byte, wantUncompressed, wantCompressed, wantOffset, wantDiskStart bool) (zip64Fields, error) {
	var z zip64Fields
	v := newView(data)
	off := 0
	readU64 := func() (uint64, error) {
		val, err := v.uint64At(off)
		if err != nil {
			return 0, wrapErr(ErrFormat, "zip64 extra field too short", err)
		}
		off += 8
		return val, nil
	}
	if wantUncompressed {
		val, err := readU64()
		if err != nil {
			return z, err
		}
		z.uncompressedSize, z.hasUncompressed = val, true
	}
	if wantCompressed {
		val, err := readU64()
		if err != nil {
			return z, err
		}
		z.compressedSize, z.hasCompressed = val, true
	}
	if wantOffset {
		val, err := readU64()
		if err != nil {
			return z, err
		}
		z.localHeaderOffset, z.hasOffset = val, true
	}
	if wantDiskStart {
		val, err := v.uint32At(off)
		if err != nil {
			return z, wrapErr(ErrFormat, "zip64 extra field too short", err)
		}
		off += 4
		if val != 0 {
			return z, newErr(ErrMultiDisk, "zip64 extra field disk-start number is nonzero")
		}
		z.diskStart, z.hasDiskStart = val, true
	}
	return z, nil
}

// serializeZip64Extra emits the ZIP64 extended-information extra record
// holding exactly the present fields, in order.
func serializeZip64Extra(z zip64Fields) ExtraRecord {
	w := newBuildBuf(28)
	if z.hasUncompressed {
		w.uint64(z.uncompressedSize)
	}
	if z.hasCompressed {
		w.uint64(z.compressedSize)
	}
	if z.hasOffset {
		w.uint64(z.localHeaderOffset)
	}
	if z.hasDiskStart {
		w.uint32(z.diskStart)
	}
	return ExtraRecord{Tag: zip64ExtraID, Data: w.Bytes()}
}

// unicodeExtraField is the Info-ZIP Unicode Path/Comment extra-field
// layout: {version: u8 = 1, crc32: u32 LE of the CP437-encoded original,
// value: UTF-8 bytes for the rest}.
type unicodeExtraField struct {
	crc32 uint32
	value string
}

func parseUnicodeExtraField(data []byte) (unicodeExtraField, error) {
	v := newView(data)
	version, err := v.uint8At(0)
	if err != nil {
		return unicodeExtraField{}, wrapErr(ErrFormat, "truncated unicode extra field", err)
	}
	if version != 1 {
		return unicodeExtraField{}, newErr(ErrFormat, "unsupported unicode extra field version")
	}
	crc, err := v.uint32At(1)
	if err != nil {
		return unicodeExtraField{}, wrapErr(ErrFormat, "truncated unicode extra field", err)
	}
	return unicodeExtraField{crc32: crc, value: string(data[5:])}, nil
}

// resolveUnicodeOverride consults a recognized unicode extra field (if
// present) and returns the value it carries when its CRC-32 matches the
// CP437 encoding of original (the string as otherwise decoded from the
// header), per spec.md §4.6's "overrides if consistent, otherwise the
// entry has since been renamed" rule. ok is false if there is no matching
// override to apply.
func resolveUnicodeOverride(records []ExtraRecord, tag uint16, originalCP437Bytes []byte) (value string, ok bool) {
	payload, found := findExtra(records, tag)
	if !found {
		return "", false
	}
	field, err := parseUnicodeExtraField(payload)
	if err != nil {
		return "", false
	}
	if field.crc32 != crc32.ChecksumIEEE(originalCP437Bytes) {
		return "", false
	}
	return field.value, true
}

// resolvePathAndComment applies the encoding policy of spec.md §4.6: when
// the UTF-8 flag is set, rawName/rawComment are UTF-8 directly and the
// Info-ZIP Unicode extra fields are not consulted; otherwise CP437 is the
// base encoding and a matching Unicode extra field, if present, overrides
// it.
func resolvePathAndComment(rawName, rawComment []byte, flags Flags, records []ExtraRecord) (name, comment string) {
	if flags.HasUTF8() {
		return string(rawName), string(rawComment)
	}
	name = cp437Decode(rawName)
	comment = cp437Decode(rawComment)
	if v, ok := resolveUnicodeOverride(records, unicodePathExtraID, rawName); ok {
		name = v
	}
	if v, ok := resolveUnicodeOverride(records, unicodeCmtExtraID, rawComment); ok {
		comment = v
	}
	return name, comment
}
