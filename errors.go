package dzip

import "github.com/meigma/dzip/internal/dztype"

// Sentinel errors re-exported for callers. Structural errors (bad magic,
// unsupported version, truncated metadata, failed repair) abort Open
// entirely: no partial archive view is exposed. Per-entry errors
// (decompression failures) are isolated to batch results.
var (
	ErrBadMagic           = dztype.ErrBadMagic
	ErrUnsupportedVersion = dztype.ErrUnsupportedVersion
	ErrTruncated          = dztype.ErrTruncated
	ErrEntryCountOverflow = dztype.ErrEntryCountOverflow
	ErrUnsupportedMethod  = dztype.ErrUnsupportedMethod
	ErrArchiveTruncated   = dztype.ErrArchiveTruncated
	ErrCompression        = dztype.ErrCompression
	ErrDecompression      = dztype.ErrDecompression
	ErrSizeOverflow       = dztype.ErrSizeOverflow
	ErrHeaderRepair       = dztype.ErrHeaderRepair
)

// RepairError reports metadata inconsistent beyond automatic recovery.
type RepairError = dztype.RepairError
