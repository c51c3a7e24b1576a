package zipkit

import "testing"

func TestFlagsWithDataDescriptor(t *testing.T) {
	var f Flags
	f = f.WithDataDescriptor(true)
	if !f.HasDataDescriptor() {
		t.Error("HasDataDescriptor() = false after WithDataDescriptor(true)")
	}
	f = f.WithDataDescriptor(false)
	if f.HasDataDescriptor() {
		t.Error("HasDataDescriptor() = true after WithDataDescriptor(false)")
	}
}

func TestFlagsWithUTF8PreservesOtherBits(t *testing.T) {
	f := Flags(0).WithDataDescriptor(true).WithUTF8(true)
	if !f.HasDataDescriptor() || !f.HasUTF8() {
		t.Fatalf("Flags %#x: want both data-descriptor and UTF-8 bits set", uint16(f))
	}
	f = f.WithUTF8(false)
	if !f.HasDataDescriptor() {
		t.Error("WithUTF8(false) cleared the unrelated data-descriptor bit")
	}
	if f.HasUTF8() {
		t.Error("HasUTF8() = true after WithUTF8(false)")
	}
}

func TestFlagsEncryptedReadOnly(t *testing.T) {
	f := Flags(0x0001 | 0x0040)
	if !f.Encrypted() {
		t.Error("Encrypted() = false, want true")
	}
	if !f.StronglyEncrypted() {
		t.Error("StronglyEncrypted() = false, want true")
	}
}
