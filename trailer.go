package zipkit

const (
	eocdrSignature        = 0x06054b50
	eocdrFixedLen         = 22
	zip64LocatorSignature = 0x07064b50
	zip64LocatorLen       = 20
	zip64EOCDRSignature   = 0x06064b50
	zip64EOCDRFixedLen    = 56

	maxCommentLen = 0xFFFF
)

// Trailer is the archive-level summary parsed from the tail of a ZIP file,
// or produced by a Writer at finalize time. See spec.md §3 "Archive
// trailer".
type Trailer struct {
	Comment         string
	EntryCount      uint64
	DirectoryOffset uint64
	DirectorySize   uint64
	IsZip64         bool
	VersionMadeBy   uint16
	VersionNeeded   uint16
	Platform        Platform
}

// NeedMoreBytesError is returned by LocateTrailer when the ZIP64 end of
// central directory record lies outside the supplied tail window. The
// caller should read Length bytes starting at Offset and retry.
type NeedMoreBytesError struct {
	Offset int64
	Length int64
}

func (e *NeedMoreBytesError) Error() string {
	return "zipkit: need more bytes to locate trailer"
}

// LocateTrailer finds and parses the end-of-central-directory record (and,
// if present, the ZIP64 locator/EOCDR chain) within window, a tail slice of
// the archive whose first byte is at absolute file offset windowStart.
//
// If the ZIP64 EOCDR it needs lies before windowStart, or the base EOCDR
// carries ZIP64 sentinels while the ZIP64 locator lies before windowStart,
// LocateTrailer returns a *NeedMoreBytesError describing the range the
// caller should read and retry with (the window must then start at or
// before that range).
func LocateTrailer(window []byte, windowStart int64) (*Trailer, error) {
	eocdrLocal, err := findEOCDRSignature(window)
	if err != nil {
		return nil, err
	}

	v := newView(window)
	diskNumber, _ := v.uint16At(eocdrLocal + 4)
	diskWithDirStart, _ := v.uint16At(eocdrLocal + 6)
	entryCountThisDisk, _ := v.uint16At(eocdrLocal + 8)
	entryCount, _ := v.uint16At(eocdrLocal + 10)
	dirSize, _ := v.uint32At(eocdrLocal + 12)
	dirOffset, _ := v.uint32At(eocdrLocal + 16)
	commentLen, err := v.uint16At(eocdrLocal + 20)
	if err != nil {
		return nil, wrapErr(ErrFormat, "truncated end of central directory record", err)
	}
	commentStart := eocdrLocal + eocdrFixedLen
	if len(window) < commentStart+int(commentLen) {
		return nil, wrapErr(ErrFormat, "end of central directory comment overruns buffer", nil)
	}
	comment := cp437Decode(window[commentStart : commentStart+int(commentLen)])

	t := &Trailer{
		Comment:         comment,
		EntryCount:      uint64(entryCount),
		DirectoryOffset: uint64(dirOffset),
		DirectorySize:   uint64(dirSize),
	}

	if diskNumber != 0 || diskWithDirStart != 0 || entryCountThisDisk != entryCount {
		return nil, newErr(ErrMultiDisk, "end of central directory record indicates a multi-disk archive")
	}

	// Look for a ZIP64 locator in the 20 bytes immediately before the
	// EOCDR. Per spec.md §9, presence is inferred purely from signature
	// match at that exact offset; a pathological comment containing the
	// signature there will mis-detect, matching APPNOTE tolerance.
	locatorLocal := eocdrLocal - zip64LocatorLen
	if locatorLocal < 0 {
		// The locator would start before the window. If the base EOCDR
		// carries ZIP64 sentinels and the file has room for a locator there,
		// ask the caller for those bytes instead of returning sentinels.
		hasSentinel := entryCount == 0xFFFF || dirSize == 0xFFFFFFFF || dirOffset == 0xFFFFFFFF
		locatorAbs := windowStart + int64(locatorLocal)
		if hasSentinel && locatorAbs >= 0 {
			return nil, &NeedMoreBytesError{Offset: locatorAbs, Length: zip64LocatorLen}
		}
		return t, nil
	}
	sig, err := v.uint32At(locatorLocal)
	if err != nil || sig != zip64LocatorSignature {
		return t, nil
	}

	locDisk, _ := v.uint32At(locatorLocal + 4)
	zip64EOCDROffset, err := v.uint64At(locatorLocal + 8)
	if err != nil {
		return nil, err
	}
	totalDisks, _ := v.uint32At(locatorLocal + 16)
	if locDisk != 0 {
		return nil, newErr(ErrMultiDisk, "zip64 locator disk-number-start is nonzero")
	}
	if totalDisks != 1 {
		return nil, newErr(ErrMultiDisk, "zip64 locator indicates more than one disk")
	}

	zip64Local := int64(zip64EOCDROffset) - windowStart
	if zip64Local < 0 || zip64Local+zip64EOCDRFixedLen > int64(len(window)) {
		return nil, &NeedMoreBytesError{Offset: int64(zip64EOCDROffset), Length: zip64EOCDRFixedLen}
	}

	if err := parseZip64EOCDR(window, int(zip64Local), t); err != nil {
		return nil, err
	}
	return t, nil
}

// findEOCDRSignature scans window backward for the EOCDR signature,
// starting at the position where a zero-length-comment EOCDR would begin
// and going back far enough to cover the maximum comment length, per
// spec.md §4.9.
func findEOCDRSignature(window []byte) (int, error) {
	if len(window) < eocdrFixedLen {
		return 0, newErr(ErrFormat, "end of central directory record not found")
	}
	start := len(window) - eocdrFixedLen
	floor := start - maxCommentLen
	if floor < 0 {
		floor = 0
	}
	v := newView(window)
	for off := start; off >= floor; off-- {
		sig, err := v.uint32At(off)
		if err != nil {
			continue
		}
		if sig == eocdrSignature {
			return off, nil
		}
	}
	return 0, newErr(ErrFormat, "end of central directory record not found")
}

func parseZip64EOCDR(window []byte, local int, t *Trailer) error {
	v := newView(window)
	sig, err := v.uint32At(local)
	if err != nil {
		return wrapErr(ErrFormat, "truncated zip64 end of central directory record", err)
	}
	if sig != zip64EOCDRSignature {
		return newErrAt(ErrSignature, int64(local), "zip64 end of central directory record signature mismatch")
	}
	versionMadeBy, _ := v.uint16At(local + 12)
	versionNeeded, _ := v.uint16At(local + 14)
	diskNumber, _ := v.uint32At(local + 16)
	diskWithDirStart, _ := v.uint32At(local + 20)
	entryCountThisDisk, err := v.uint64At(local + 24)
	if err != nil {
		return err
	}
	entryCount, err := v.uint64At(local + 32)
	if err != nil {
		return err
	}
	dirSize, err := v.uint64At(local + 40)
	if err != nil {
		return err
	}
	dirOffset, err := v.uint64At(local + 48)
	if err != nil {
		return err
	}
	if diskNumber != 0 || diskWithDirStart != 0 || entryCountThisDisk != entryCount {
		return newErr(ErrMultiDisk, "zip64 end of central directory record indicates a multi-disk archive")
	}

	t.IsZip64 = true
	t.EntryCount = entryCount
	t.DirectorySize = dirSize
	t.DirectoryOffset = dirOffset
	t.VersionMadeBy = versionMadeBy
	t.VersionNeeded = versionNeeded
	t.Platform = Platform(versionMadeBy >> 8)
	return nil
}

// serializeTrailer emits the end-of-central-directory record, plus the
// ZIP64 end-of-central-directory record and locator when useZip64 is true.
// Per spec.md §4.9, when ZIP64 is emitted the base EOCDR's entry count,
// directory size, and directory offset fields are set to their sentinels.
func serializeTrailer(entryCount uint64, directoryOffset, directorySize uint64, comment string, useZip64 bool) ([]byte, error) {
	commentBytes, err := cp437Encode(comment)
	if err != nil {
		return nil, err
	}
	if len(commentBytes) > maxCommentLen {
		return nil, newErr(ErrRange, "archive comment too long")
	}

	w := newBuildBuf(0)
	if useZip64 {
		recordSize := uint64(zip64EOCDRFixedLen - 12)
		w.uint32(zip64EOCDRSignature)
		w.uint64(recordSize)
		w.uint16(uint16(PlatformUnix)<<8 | zipVersion45)
		w.uint16(zipVersion45)
		w.uint32(0) // number of this disk
		w.uint32(0) // number of the disk with the start of the central directory
		w.uint64(entryCount)
		w.uint64(entryCount)
		w.uint64(directorySize)
		w.uint64(directoryOffset)

		w.uint32(zip64LocatorSignature)
		w.uint32(0)
		w.uint64(directoryOffset + directorySize)
		w.uint32(1)
	}

	eocdrEntryCount := entryCount
	eocdrDirSize := directorySize
	eocdrDirOffset := directoryOffset
	if useZip64 || entryCount > 0xFFFE {
		eocdrEntryCount = 0xFFFF
	}
	if useZip64 || directorySize >= 0xFFFFFFFF {
		eocdrDirSize = 0xFFFFFFFF
	}
	if useZip64 || directoryOffset >= 0xFFFFFFFF {
		eocdrDirOffset = 0xFFFFFFFF
	}

	w.uint32(eocdrSignature)
	w.uint16(0) // number of this disk
	w.uint16(0) // number of the disk with the start of the central directory
	w.uint16(uint16(eocdrEntryCount))
	w.uint16(uint16(eocdrEntryCount))
	w.uint32(uint32(eocdrDirSize))
	w.uint32(uint32(eocdrDirOffset))
	w.uint16(uint16(len(commentBytes)))
	w.bytes(commentBytes)
	return w.Bytes(), nil
}
