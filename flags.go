package zipkit

// Flags is the 16-bit general-purpose bit flag field carried by local and
// central headers. Bits this package does not name round-trip opaquely:
// parsing preserves them and serializing emits them back unchanged except
// where explicitly toggled through the named accessors below.
type Flags uint16

const (
	flagEncryption      = 1 << 0
	flagDataDescriptor  = 1 << 3
	flagStrongEncrypted = 1 << 6
	flagUTF8            = 1 << 11
)

// Encrypted reports whether the entry claims to be encrypted. This package
// never encrypts or decrypts; the bit is read-only on this surface.
func (f Flags) Encrypted() bool { return f&flagEncryption != 0 }

// StronglyEncrypted reports whether the entry claims strong encryption.
// Read-only, like Encrypted.
func (f Flags) StronglyEncrypted() bool { return f&flagStrongEncrypted != 0 }

// HasDataDescriptor reports whether a trailing data descriptor record
// follows this entry's compressed payload.
func (f Flags) HasDataDescriptor() bool { return f&flagDataDescriptor != 0 }

// WithDataDescriptor returns f with the data-descriptor bit set or cleared.
func (f Flags) WithDataDescriptor(v bool) Flags { return setBit16(f, flagDataDescriptor, v) }

// HasUTF8 reports whether Name and Comment are UTF-8 encoded rather than
// CP437.
func (f Flags) HasUTF8() bool { return f&flagUTF8 != 0 }

// WithUTF8 returns f with the UTF-8 bit set or cleared.
func (f Flags) WithUTF8(v bool) Flags { return setBit16(f, flagUTF8, v) }

func setBit16(f Flags, bit uint16, v bool) Flags {
	if v {
		return f | Flags(bit)
	}
	return f &^ Flags(bit)
}
