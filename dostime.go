package zipkit

import "time"

// extTimeExtraID is the Info-ZIP "extended timestamp" extra-field tag
// (0x5455). It is not one of the tags spec.md names as "recognized", but
// every real ZIP writer emits it, so zipkit writes and reads it as a
// best-effort refinement of the DOS-encoded Modified time; see SPEC_FULL.md.
const extTimeExtraID = 0x5455

// dosEpoch is the earliest instant representable in DOS date/time: January
// 1, 1980.
var dosEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// toDosDateTime packs t into the 16-bit DOS date and time halves. The
// year is clamped at 1980 and seconds are truncated to 2-second
// resolution, per spec.md §4.3.
func toDosDateTime(t time.Time) (date, dtime uint16) {
	if t.Before(dosEpoch) {
		t = dosEpoch
	}
	year := t.Year() - 1980
	if year > 127 {
		year = 127
	}
	date = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	dtime = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return
}

// fromDosDateTime unpacks a DOS date/time pair into a UTC time.Time.
func fromDosDateTime(date, dtime uint16) time.Time {
	year := int(date>>9) + 1980
	month := time.Month(date >> 5 & 0xf)
	day := int(date & 0x1f)
	hour := int(dtime >> 11)
	minute := int(dtime >> 5 & 0x3f)
	second := int(dtime&0x1f) * 2

	// DOS months/days are 1-based; a value of 0 would otherwise roll back
	// into the prior month/year via time.Date's normalization. Treat an
	// all-zero field (which real writers never emit for a valid date) as
	// the epoch itself rather than producing a surprising 1979 date.
	if month == 0 {
		month = time.January
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// encodeExtendedTimestamp builds an Info-ZIP extended-timestamp extra field
// (tag 0x5455) carrying only the modification time, the form both the
// local and central header variants share when mtime is the only
// timestamp encoded.
func encodeExtendedTimestamp(t time.Time) []byte {
	w := newBuildBuf(9)
	w.uint16(extTimeExtraID)
	w.uint16(5) // flags byte + 4-byte unix time
	w.uint8(1)  // flags: bit 0 = mtime present
	w.uint32(uint32(t.Unix()))
	return w.Bytes()
}

// decodeExtendedTimestamp extracts a modification time from an Info-ZIP
// extended-timestamp extra field payload (the bytes following the tag and
// size fields), if the mtime flag bit is present. It returns ok=false for
// a payload too short to hold at least the flags byte and an mtime.
func decodeExtendedTimestamp(payload []byte) (t time.Time, ok bool) {
	if len(payload) < 5 {
		return time.Time{}, false
	}
	flags := payload[0]
	if flags&1 == 0 {
		return time.Time{}, false
	}
	v := newView(payload)
	sec, err := v.uint32At(1)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(int32(sec)), 0).UTC(), true
}
