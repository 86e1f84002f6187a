// Package dztype defines shared types used across the dzip package and its
// internal packages. This avoids circular imports between dzip and the
// format, repair, and codec layers.
package dztype

// Method identifies the compression algorithm applied to an entry's chunks.
//
// Values are the on-disk u16 method tags of the dzip container. The set is
// closed: an unrecognized tag is a decode-time error, never a runtime
// fallback.
type Method uint16

const (
	// MethodStore leaves chunk bytes uncompressed.
	MethodStore Method = 0x0000
	// MethodDZRange marks chunks encoded with the SDK's proprietary range
	// coder. Recognized so legacy archives list correctly; extraction is
	// unsupported.
	MethodDZRange Method = 0x0004
	// MethodZlib marks zlib (RFC 1950) chunks.
	MethodZlib Method = 0x0008
	// MethodBzip2 marks bzip2 chunks.
	MethodBzip2 Method = 0x0010
	// MethodZero marks chunks with no stored bytes that expand to zeros.
	MethodZero Method = 0x0080
	// MethodLzma marks LZMA (classic .lzma framing) chunks.
	MethodLzma Method = 0x0200
	// MethodZstd marks zstandard chunks. Writer extension tag; absent from
	// legacy archives.
	MethodZstd Method = 0x0800

	// tagCopy is a legacy alias for store; some packers emit it instead of
	// a zero tag. Normalized to MethodStore at decode.
	tagCopy uint16 = 0x0100
)

func (m Method) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodDZRange:
		return "dz-range"
	case MethodZlib:
		return "zlib"
	case MethodBzip2:
		return "bzip2"
	case MethodZero:
		return "zero"
	case MethodLzma:
		return "lzma"
	case MethodZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Tag returns the on-disk u16 value for the method.
func (m Method) Tag() uint16 {
	return uint16(m)
}

// MethodFromTag maps an on-disk tag to a Method. The legacy copy tag is
// normalized to MethodStore. Returns false for tags outside the closed set.
func MethodFromTag(tag uint16) (Method, bool) {
	if tag == tagCopy {
		return MethodStore, true
	}
	switch m := Method(tag); m {
	case MethodStore, MethodDZRange, MethodZlib, MethodBzip2, MethodZero, MethodLzma, MethodZstd:
		return m, true
	default:
		return 0, false
	}
}

// Header is the decoded fixed archive header.
type Header struct {
	Version     uint16
	EntryCount  uint32
	VolumeCount uint16
	// ChunkSize is the default chunk size for entries using implicit
	// fixed-size chunking. Zero when every entry carries an explicit
	// chunk table.
	ChunkSize uint32
}

// Chunk describes one compression unit within an entry's data region.
type Chunk struct {
	// Offset is the logical offset of the chunk's compressed bytes in the
	// concatenated volume address space.
	Offset uint64
	// CompressedLen is the stored byte length. This is the field subject
	// to the legacy size corruption; repair re-derives it from offset
	// evidence.
	CompressedLen uint32
	// UncompressedLen is the plain byte length the chunk expands to.
	UncompressedLen uint32
}

// Entry describes one packed resource.
//
// Path holds the raw on-disk path bytes verbatim: no encoding is assumed
// and no separator translation happens at this layer.
type Entry struct {
	Path             []byte
	UncompressedSize uint64
	CompressedSize   uint64
	Method           Method
	// Offset is the logical offset of the entry's first chunk.
	Offset uint64
	Chunks []Chunk
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	c.Path = append([]byte(nil), e.Path...)
	c.Chunks = append([]Chunk(nil), e.Chunks...)
	return c
}

// Repaired fields recorded in a Correction.
const (
	FieldCompressedSize = "compressed_size"
	FieldChunkLen       = "chunk_compressed_len"
)

// Correction records one size-field substitution made by the repair engine.
type Correction struct {
	EntryIndex int
	// ChunkIndex is -1 for entry-level corrections.
	ChunkIndex int
	Field      string
	Declared   uint64
	Computed   uint64
}

// RepairReport lists the corrections applied during one open. It is a
// transient diagnostic value; it is not persisted.
type RepairReport struct {
	Corrections []Correction
}

// Empty reports whether the repair pass made no changes.
func (r RepairReport) Empty() bool {
	return len(r.Corrections) == 0
}
