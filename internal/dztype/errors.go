package dztype

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations.
var (
	// ErrBadMagic is returned when the archive does not start with the
	// dzip magic signature.
	ErrBadMagic = errors.New("dzip: bad magic")

	// ErrUnsupportedVersion is returned for format versions this reader
	// does not understand.
	ErrUnsupportedVersion = errors.New("dzip: unsupported format version")

	// ErrTruncated is returned when the metadata region ends before a
	// complete record.
	ErrTruncated = errors.New("dzip: truncated metadata")

	// ErrEntryCountOverflow is returned when the declared entry count
	// cannot fit in the remaining metadata bytes.
	ErrEntryCountOverflow = errors.New("dzip: entry count exceeds metadata size")

	// ErrUnsupportedMethod is returned when an entry declares a method
	// tag outside the closed method set.
	ErrUnsupportedMethod = errors.New("dzip: unsupported compression method")

	// ErrArchiveTruncated is returned when a logical span extends past
	// the end of the concatenated volume address space.
	ErrArchiveTruncated = errors.New("dzip: archive truncated")

	// ErrCompression is returned when a codec fails to compress a chunk.
	ErrCompression = errors.New("dzip: compression failed")

	// ErrDecompression is returned when a chunk's payload is corrupt or
	// cannot be decoded. Isolated to the affected entry.
	ErrDecompression = errors.New("dzip: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("dzip: size overflow")

	// ErrHeaderRepair is the sentinel wrapped by RepairError.
	ErrHeaderRepair = errors.New("dzip: header repair failed")
)

// RepairError reports metadata inconsistent beyond automatic recovery.
// The archive is unusable without manual intervention.
type RepairError struct {
	EntryIndex int
	Reason     string
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("dzip: header repair failed at entry %d: %s", e.EntryIndex, e.Reason)
}

func (e *RepairError) Unwrap() error {
	return ErrHeaderRepair
}
