package repair

import (
	"errors"
	"reflect"
	"testing"

	"github.com/meigma/dzip/internal/dztype"
)

const metaSize = 100

// entry builds a single-chunk entry whose chunk lengths agree with the
// declared sizes.
func entry(path string, offset, usize, csize uint64, m dztype.Method) dztype.Entry {
	return dztype.Entry{
		Path:             []byte(path),
		UncompressedSize: usize,
		CompressedSize:   csize,
		Method:           m,
		Offset:           offset,
		Chunks: []dztype.Chunk{
			{Offset: offset, CompressedLen: uint32(csize), UncompressedLen: uint32(usize)},
		},
	}
}

func TestRunCorrectsDeclaredSize(t *testing.T) {
	t.Parallel()

	// Entry A declares 8 compressed bytes but the next entry starts 12
	// bytes after it; 12 wins.
	entries := []dztype.Entry{
		entry("a.bin", metaSize, 10, 8, dztype.MethodZlib),
		entry("b.bin", metaSize+12, 5, 5, dztype.MethodStore),
	}
	entries[0].Chunks[0].UncompressedLen = 10

	repaired, report, err := Run(entries, metaSize, metaSize+17)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := repaired[0].CompressedSize; got != 12 {
		t.Fatalf("compressed size = %d, want 12", got)
	}
	if entries[0].CompressedSize != 8 {
		t.Fatal("Run modified its input")
	}

	want := []dztype.Correction{
		{EntryIndex: 0, ChunkIndex: -1, Field: dztype.FieldCompressedSize, Declared: 8, Computed: 12},
		{EntryIndex: 0, ChunkIndex: 0, Field: dztype.FieldChunkLen, Declared: 8, Computed: 12},
	}
	if !reflect.DeepEqual(report.Corrections, want) {
		t.Fatalf("corrections = %+v, want %+v", report.Corrections, want)
	}

	// Uncompressed sizes are left alone.
	if repaired[0].UncompressedSize != 10 {
		t.Fatalf("uncompressed size = %d, want 10", repaired[0].UncompressedSize)
	}
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	entries := []dztype.Entry{
		entry("a.bin", metaSize, 10, 8, dztype.MethodZlib),
		entry("b.bin", metaSize+12, 5, 5, dztype.MethodStore),
	}
	entries[0].Chunks[0].UncompressedLen = 10

	once, _, err := Run(entries, metaSize, metaSize+17)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	twice, report, err := Run(once, metaSize, metaSize+17)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("second pass made corrections: %+v", report.Corrections)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second pass changed entries")
	}
}

func TestRunCleanArchiveUntouched(t *testing.T) {
	t.Parallel()

	entries := []dztype.Entry{
		entry("a.bin", metaSize, 20, 15, dztype.MethodZlib),
		entry("b.bin", metaSize+15, 7, 7, dztype.MethodStore),
	}

	repaired, report, err := Run(entries, metaSize, metaSize+22)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("unexpected corrections: %+v", report.Corrections)
	}
	if !reflect.DeepEqual(repaired, entries) {
		t.Fatal("clean entries were modified")
	}
}

func TestRunLastEntryBoundedByArchiveEnd(t *testing.T) {
	t.Parallel()

	entries := []dztype.Entry{
		entry("only.bin", metaSize, 30, 99, dztype.MethodZlib),
	}
	entries[0].Chunks[0].UncompressedLen = 30

	repaired, report, err := Run(entries, metaSize, metaSize+25)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := repaired[0].CompressedSize; got != 25 {
		t.Fatalf("compressed size = %d, want 25", got)
	}
	if len(report.Corrections) == 0 {
		t.Fatal("expected a correction")
	}
}

func TestRunChunkLengthsRederived(t *testing.T) {
	t.Parallel()

	e := dztype.Entry{
		Path:             []byte("multi.bin"),
		UncompressedSize: 50,
		CompressedSize:   40,
		Method:           dztype.MethodZlib,
		Offset:           metaSize,
		Chunks: []dztype.Chunk{
			{Offset: metaSize, CompressedLen: 99, UncompressedLen: 30},
			{Offset: metaSize + 25, CompressedLen: 10, UncompressedLen: 20},
		},
	}

	repaired, report, err := Run([]dztype.Entry{e}, metaSize, metaSize+40)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := repaired[0].Chunks[0].CompressedLen; got != 25 {
		t.Fatalf("chunk 0 length = %d, want 25", got)
	}
	if got := repaired[0].Chunks[1].CompressedLen; got != 15 {
		t.Fatalf("chunk 1 length = %d, want 15", got)
	}
	want := []dztype.Correction{
		{EntryIndex: 0, ChunkIndex: 0, Field: dztype.FieldChunkLen, Declared: 99, Computed: 25},
		{EntryIndex: 0, ChunkIndex: 1, Field: dztype.FieldChunkLen, Declared: 10, Computed: 15},
	}
	if !reflect.DeepEqual(report.Corrections, want) {
		t.Fatalf("corrections = %+v, want %+v", report.Corrections, want)
	}
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []dztype.Entry
		total   uint64
	}{
		{
			name: "non-monotonic entry offsets",
			entries: []dztype.Entry{
				entry("a.bin", metaSize+20, 5, 5, dztype.MethodStore),
				entry("b.bin", metaSize, 5, 5, dztype.MethodStore),
			},
			total: metaSize + 30,
		},
		{
			name: "offset before data region",
			entries: []dztype.Entry{
				entry("a.bin", metaSize-1, 5, 5, dztype.MethodStore),
			},
			total: metaSize + 10,
		},
		{
			name: "offset beyond archive end",
			entries: []dztype.Entry{
				entry("a.bin", metaSize, 5, 5, dztype.MethodStore),
				entry("b.bin", metaSize+500, 5, 5, dztype.MethodStore),
			},
			total: metaSize + 20,
		},
		{
			name: "first chunk offset disagrees",
			entries: []dztype.Entry{
				{
					Path:             []byte("a.bin"),
					UncompressedSize: 5,
					CompressedSize:   5,
					Method:           dztype.MethodStore,
					Offset:           metaSize,
					Chunks: []dztype.Chunk{
						{Offset: metaSize + 3, CompressedLen: 5, UncompressedLen: 5},
					},
				},
			},
			total: metaSize + 5,
		},
		{
			name: "chunk uncompressed sum disagrees",
			entries: []dztype.Entry{
				{
					Path:             []byte("a.bin"),
					UncompressedSize: 50,
					CompressedSize:   5,
					Method:           dztype.MethodZlib,
					Offset:           metaSize,
					Chunks: []dztype.Chunk{
						{Offset: metaSize, CompressedLen: 5, UncompressedLen: 10},
					},
				},
			},
			total: metaSize + 5,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Run(tt.entries, metaSize, tt.total)
			var re *dztype.RepairError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RepairError", err)
			}
			if !errors.Is(err, dztype.ErrHeaderRepair) {
				t.Fatalf("error %v does not wrap ErrHeaderRepair", err)
			}
		})
	}
}

func TestRunZeroSizeEntries(t *testing.T) {
	t.Parallel()

	// Back-to-back empty entries share an offset; computed size is zero.
	entries := []dztype.Entry{
		{Path: []byte("empty1"), Method: dztype.MethodStore, Offset: metaSize},
		{Path: []byte("empty2"), Method: dztype.MethodStore, Offset: metaSize},
		entry("data.bin", metaSize, 5, 5, dztype.MethodStore),
	}

	repaired, report, err := Run(entries, metaSize, metaSize+5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("unexpected corrections: %+v", report.Corrections)
	}
	if repaired[0].CompressedSize != 0 || repaired[1].CompressedSize != 0 {
		t.Fatal("empty entries gained a compressed size")
	}
}
