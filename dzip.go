// Package dzip reads, repairs, and writes the SDK's multi-chunk,
// multi-volume .dz/.dzip resource container.
//
// An archive is a logical address space formed by concatenating one or more
// volume files. The metadata region at the front of volume 0 describes
// entries (packed resources) and their chunks (independently compressed
// sub-units). Legacy-produced archives often declare wrong compressed-size
// fields; Open recovers the true values from chunk offset evidence before
// any extraction is permitted and reports every substitution it made.
//
// Entry paths are raw bytes in the archive's own convention. The engine
// performs no separator or encoding normalization; callers converting to
// host paths own that translation.
package dzip

import (
	"github.com/meigma/dzip/internal/dztype"
)

// Re-export types from internal/dztype for the public API.
type (
	// Method identifies a chunk compression algorithm.
	Method = dztype.Method

	// Header is the decoded fixed archive header.
	Header = dztype.Header

	// Chunk describes one compression unit within an entry.
	Chunk = dztype.Chunk

	// Entry describes one packed resource. Path is raw bytes.
	Entry = dztype.Entry

	// RepairReport lists size-field corrections applied during Open.
	RepairReport = dztype.RepairReport

	// Correction records one substitution made by the repair engine.
	Correction = dztype.Correction
)

// Re-export method constants.
const (
	MethodStore   = dztype.MethodStore
	MethodDZRange = dztype.MethodDZRange
	MethodZlib    = dztype.MethodZlib
	MethodBzip2   = dztype.MethodBzip2
	MethodZero    = dztype.MethodZero
	MethodLzma    = dztype.MethodLzma
	MethodZstd    = dztype.MethodZstd
)

// DefaultChunkSize is the compression unit size used when a pack job does
// not set one.
const DefaultChunkSize = 256 << 10

// EntryInfo is a read-only snapshot of one entry's metadata, as surfaced by
// List and extraction results.
type EntryInfo struct {
	// Index is the entry's position in declared order.
	Index int
	// Path is the raw archive path, verbatim.
	Path []byte
	// UncompressedSize is the entry's plain byte length.
	UncompressedSize uint64
	// CompressedSize is the stored byte length after repair.
	CompressedSize uint64
	// Method is the chunk compression algorithm.
	Method Method
	// Offset is the logical offset of the entry's data.
	Offset uint64
	// Chunks is the number of compression units.
	Chunks int
}

func entryInfo(i int, e dztype.Entry) EntryInfo {
	return EntryInfo{
		Index:            i,
		Path:             e.Path,
		UncompressedSize: e.UncompressedSize,
		CompressedSize:   e.CompressedSize,
		Method:           e.Method,
		Offset:           e.Offset,
		Chunks:           len(e.Chunks),
	}
}
