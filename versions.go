package zipkit

// Compression methods (spec.md §6).
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Version-needed-to-extract codes (spec.md §6).
const (
	zipVersionDeflate = 20
	zipVersion45      = 45 // ZIP64
	zipVersionUTF8    = 63
)

const (
	uint16max = 1<<16 - 1
	uint32max = 1<<32 - 1
)
