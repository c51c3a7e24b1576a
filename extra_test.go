package zipkit

import (
	"hash/crc32"
	"testing"
)

func TestExtraFieldsRoundTrip(t *testing.T) {
	records := []ExtraRecord{
		{Tag: 0x0001, Data: []byte{1, 2, 3, 4}},
		{Tag: 0x7075, Data: []byte("hello")},
	}
	blob := serializeExtraFields(records)
	got, err := parseExtraFields(blob)
	if err != nil {
		t.Fatalf("parseExtraFields: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("parseExtraFields returned %d records, want %d", len(got), len(records))
	}
	for i, r := range records {
		if got[i].Tag != r.Tag || string(got[i].Data) != string(r.Data) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], r)
		}
	}
}

func TestParseExtraFieldsTruncatedPayload(t *testing.T) {
	// tag=0x0001, size=10, but only 2 bytes of payload follow.
	blob := []byte{0x01, 0x00, 0x0a, 0x00, 0x01, 0x02}
	if _, err := parseExtraFields(blob); err == nil {
		t.Fatal("parseExtraFields: expected a format error for an overrunning size")
	}
}

func TestFindAndWithoutExtra(t *testing.T) {
	records := []ExtraRecord{
		{Tag: 1, Data: []byte("a")},
		{Tag: 2, Data: []byte("b")},
	}
	if _, ok := findExtra(records, 2); !ok {
		t.Fatal("findExtra: want tag 2 present")
	}
	if _, ok := findExtra(records, 3); ok {
		t.Fatal("findExtra: want tag 3 absent")
	}
	filtered := withoutExtra(records, 1)
	if len(filtered) != 1 || filtered[0].Tag != 2 {
		t.Errorf("withoutExtra(1) = %+v, want only tag 2", filtered)
	}
}

func TestZip64ExtraRoundTrip(t *testing.T) {
	z := zip64Fields{
		uncompressedSize: 1 << 40, hasUncompressed: true,
		compressedSize: 1 << 30, hasCompressed: true,
	}
	rec := serializeZip64Extra(z)
	got, err := parseZip64Extra(rec.Data, true, true, false, false)
	if err != nil {
		t.Fatalf("parseZip64Extra: %v", err)
	}
	if got.uncompressedSize != z.uncompressedSize || got.compressedSize != z.compressedSize {
		t.Errorf("parseZip64Extra = %+v, want %+v", got, z)
	}
}

func TestZip64ExtraNonzeroDiskStartRejected(t *testing.T) {
	w := newBuildBuf(4)
	w.uint32(1)
	if _, err := parseZip64Extra(w.Bytes(), false, false, false, true); err == nil {
		t.Fatal("parseZip64Extra: expected a multi-disk error for a nonzero disk-start")
	}
}

func TestResolvePathAndCommentUTF8Flag(t *testing.T) {
	name, comment := resolvePathAndComment([]byte("café.txt"), []byte("hi"), Flags(0).WithUTF8(true), nil)
	if name != "café.txt" || comment != "hi" {
		t.Errorf("resolvePathAndComment with UTF8 flag = (%q, %q)", name, comment)
	}
}

func TestResolvePathAndCommentUnicodeOverride(t *testing.T) {
	rawName := []byte("ascii.txt")
	override := "café.txt"
	field := newBuildBuf(5 + len(override))
	field.uint8(1)
	field.uint32(crc32.ChecksumIEEE(rawName))
	field.string(override)

	records := []ExtraRecord{{Tag: unicodePathExtraID, Data: field.Bytes()}}
	name, _ := resolvePathAndComment(rawName, nil, Flags(0), records)
	if name != override {
		t.Errorf("resolvePathAndComment override = %q, want %q", name, override)
	}
}

func TestResolvePathAndCommentStaleOverrideIgnored(t *testing.T) {
	rawName := []byte("ascii.txt")
	field := newBuildBuf(5)
	field.uint8(1)
	field.uint32(0xdeadbeef) // does not match CRC of rawName
	field.string("")

	records := []ExtraRecord{{Tag: unicodePathExtraID, Data: field.Bytes()}}
	name, _ := resolvePathAndComment(rawName, nil, Flags(0), records)
	if name != cp437Decode(rawName) {
		t.Errorf("resolvePathAndComment with stale CRC = %q, want CP437 fallback %q", name, cp437Decode(rawName))
	}
}
