// Package repair recovers correct compressed-size fields when an entry's
// declared size disagrees with the evidence available from chunk and entry
// offsets.
//
// Some legacy-produced archives ship with a wrong declared compressed size
// while the chunk data itself is intact and self-describing through offsets:
// each entry's true compressed extent runs from its own start offset to the
// next entry's start offset, and the last entry runs to the end of the
// logical address space. Repair cross-references those offsets, substitutes
// computed values where declarations disagree, and refuses to guess when the
// offsets themselves are inconsistent.
//
// Declared uncompressed sizes are never altered: the observed corruption
// pattern does not implicate them, and a wrong guess there would silently
// corrupt extracted content.
package repair

import (
	"fmt"

	"github.com/meigma/dzip/internal/dztype"
)

// Run validates entry size fields against offset evidence and returns a
// corrected copy of the entries together with a report of the substitutions
// made. The input slice is never modified; callers never observe a
// partially repaired archive.
//
// metadataSize is the logical offset where the data region begins and
// totalSize the end of the logical address space. Run is idempotent:
// applying it to already-correct entries yields an empty report.
func Run(entries []dztype.Entry, metadataSize, totalSize uint64) ([]dztype.Entry, dztype.RepairReport, error) {
	repaired := make([]dztype.Entry, len(entries))
	for i, e := range entries {
		repaired[i] = e.Clone()
	}

	var report dztype.RepairReport
	for i := range repaired {
		e := &repaired[i]

		if e.Offset < metadataSize || e.Offset > totalSize {
			return nil, dztype.RepairReport{}, &dztype.RepairError{
				EntryIndex: i,
				Reason:     fmt.Sprintf("data offset %d outside data region [%d, %d]", e.Offset, metadataSize, totalSize),
			}
		}

		// Expected start of the next entry's data: its declared offset, or
		// the end of the address space for the last entry.
		nextStart := totalSize
		if i+1 < len(repaired) {
			nextStart = repaired[i+1].Offset
		}
		if nextStart < e.Offset {
			return nil, dztype.RepairReport{}, &dztype.RepairError{
				EntryIndex: i,
				Reason:     fmt.Sprintf("offsets not monotonic: next entry starts at %d before %d", nextStart, e.Offset),
			}
		}
		if nextStart > totalSize {
			return nil, dztype.RepairReport{}, &dztype.RepairError{
				EntryIndex: i + 1,
				Reason:     fmt.Sprintf("data offset %d beyond archive end %d", nextStart, totalSize),
			}
		}

		computed := nextStart - e.Offset
		if e.CompressedSize != computed {
			report.Corrections = append(report.Corrections, dztype.Correction{
				EntryIndex: i,
				ChunkIndex: -1,
				Field:      dztype.FieldCompressedSize,
				Declared:   e.CompressedSize,
				Computed:   computed,
			})
			e.CompressedSize = computed
		}

		if err := repairChunks(e, i, &report); err != nil {
			return nil, dztype.RepairReport{}, err
		}

		var usum uint64
		for _, c := range e.Chunks {
			usum += uint64(c.UncompressedLen)
		}
		if usum != e.UncompressedSize {
			return nil, dztype.RepairReport{}, &dztype.RepairError{
				EntryIndex: i,
				Reason:     fmt.Sprintf("chunk uncompressed lengths sum to %d, entry declares %d", usum, e.UncompressedSize),
			}
		}
	}
	return repaired, report, nil
}

// repairChunks re-derives per-chunk compressed lengths from the explicit
// chunk offsets, by the same next-offset subtraction used at entry level.
// The last chunk is bounded by the entry's (corrected) end offset.
func repairChunks(e *dztype.Entry, entryIdx int, report *dztype.RepairReport) error {
	if len(e.Chunks) == 0 {
		if e.CompressedSize != 0 {
			return &dztype.RepairError{
				EntryIndex: entryIdx,
				Reason:     fmt.Sprintf("no chunks but %d compressed bytes", e.CompressedSize),
			}
		}
		return nil
	}

	if first := e.Chunks[0].Offset; first != e.Offset {
		return &dztype.RepairError{
			EntryIndex: entryIdx,
			Reason:     fmt.Sprintf("first chunk offset %d disagrees with entry offset %d", first, e.Offset),
		}
	}

	end := e.Offset + e.CompressedSize
	for j := range e.Chunks {
		c := &e.Chunks[j]
		next := end
		if j+1 < len(e.Chunks) {
			next = e.Chunks[j+1].Offset
		}
		if next < c.Offset || c.Offset < e.Offset || next > end {
			return &dztype.RepairError{
				EntryIndex: entryIdx,
				Reason:     fmt.Sprintf("chunk %d offsets not monotonic within entry extent", j),
			}
		}
		computed := next - c.Offset
		if computed > 0xFFFFFFFF {
			return &dztype.RepairError{
				EntryIndex: entryIdx,
				Reason:     fmt.Sprintf("chunk %d computed length %d overflows", j, computed),
			}
		}
		if uint64(c.CompressedLen) != computed {
			report.Corrections = append(report.Corrections, dztype.Correction{
				EntryIndex: entryIdx,
				ChunkIndex: j,
				Field:      dztype.FieldChunkLen,
				Declared:   uint64(c.CompressedLen),
				Computed:   computed,
			})
			c.CompressedLen = uint32(computed)
		}
	}
	return nil
}
