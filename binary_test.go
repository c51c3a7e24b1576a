package zipkit

import "testing"

func TestViewUint16At(t *testing.T) {
	v := newView([]byte{0x01, 0x02, 0x03})
	got, err := v.uint16At(0)
	if err != nil {
		t.Fatalf("uint16At: %v", err)
	}
	if want := uint16(0x0201); got != want {
		t.Errorf("uint16At(0) = %#x, want %#x", got, want)
	}
}

func TestViewUint64AtRejectsOverMaxSafeInteger(t *testing.T) {
	v := newView(make([]byte, 8))
	if err := v.putUint32At(4, 0xFFFFFFFF); err != nil {
		t.Fatalf("putUint32At: %v", err)
	}
	if _, err := v.uint64At(0); err == nil {
		t.Fatal("uint64At: expected a range error for a value above maxSafeInteger")
	}
}

func TestViewNeedOutOfRange(t *testing.T) {
	v := newView([]byte{0x01})
	if _, err := v.uint32At(0); err == nil {
		t.Fatal("uint32At: expected a range error reading past the end of a 1-byte view")
	}
}

func TestBuildBufLittleEndianLayout(t *testing.T) {
	w := newBuildBuf(16)
	w.uint16(0x0201)
	w.uint32(0x04030201)
	w.string("hi")

	got := w.Bytes()
	want := []byte{0x01, 0x02, 0x01, 0x02, 0x03, 0x04, 'h', 'i'}
	if len(got) != len(want) {
		t.Fatalf("Bytes() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Bytes()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestBitfieldFlag(t *testing.T) {
	b, err := NewBitfield(16, 0)
	if err != nil {
		t.Fatalf("NewBitfield: %v", err)
	}
	b, err = b.SetFlag(3, true)
	if err != nil {
		t.Fatalf("SetFlag(3, true): %v", err)
	}
	if set, err := b.Flag(3); err != nil || !set {
		t.Errorf("Flag(3) = (%v, %v), want (true, nil) after SetFlag(3, true)", set, err)
	}
	if set, err := b.Flag(4); err != nil || set {
		t.Errorf("Flag(4) = (%v, %v), want (false, nil)", set, err)
	}
	b, err = b.SetFlag(3, false)
	if err != nil {
		t.Fatalf("SetFlag(3, false): %v", err)
	}
	if set, err := b.Flag(3); err != nil || set {
		t.Errorf("Flag(3) = (%v, %v), want (false, nil) after SetFlag(3, false)", set, err)
	}
}

func TestBitfieldFlagOutOfRange(t *testing.T) {
	b, err := NewBitfield(4, 0)
	if err != nil {
		t.Fatalf("NewBitfield: %v", err)
	}
	if _, err := b.Flag(4); err == nil {
		t.Fatal("Flag(4): expected a range error for a bit index beyond Width")
	}
	if _, err := b.SetFlag(4, true); err == nil {
		t.Fatal("SetFlag(4, true): expected a range error for a bit index beyond Width")
	}
}

func TestBitfieldWidthTooLarge(t *testing.T) {
	if _, err := NewBitfield(33, 0); err == nil {
		t.Fatal("NewBitfield(33, 0): expected a range error")
	}
}

func TestBitfieldValueDoesNotFitWidth(t *testing.T) {
	if _, err := NewBitfield(2, 4); err == nil {
		t.Fatal("NewBitfield(2, 4): expected a range error, 4 does not fit in 2 bits")
	}
}
