package dzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dzip/internal/codec"
	"github.com/meigma/dzip/internal/dztype"
	"github.com/meigma/dzip/internal/format"
	"github.com/meigma/dzip/internal/pathutil"
	"github.com/meigma/dzip/internal/pipeline"
	"github.com/meigma/dzip/internal/repair"
	"github.com/meigma/dzip/internal/volume"
)

// metaReadInit is the initial metadata prefix read. Doubled until the
// metadata region decodes completely or volume 0 is exhausted.
const metaReadInit = 64 << 10

// Archive is an opened, repaired archive. It is immutable after Open; all
// methods are safe for concurrent use except Close.
type Archive struct {
	header   dztype.Header
	entries  []dztype.Entry
	volPaths []string
	mapper   *volume.Mapper
	files    []*os.File
	report   dztype.RepairReport
	metaSize uint64
	cfg      openConfig
}

// Open opens the base volume at path, locates and opens the continuation
// volumes its header names, decodes the metadata region, and runs the
// header repair pass.
//
// Structural failures (bad magic, unsupported version, truncated metadata,
// repair failure) return an error and no archive: entry offsets cannot be
// trusted without a consistent header, so no partial view is exposed.
func Open(path string, opts ...OpenOption) (*Archive, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	f0, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	files := []*os.File{f0}
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	st, err := f0.Stat()
	if err != nil {
		closeAll()
		return nil, err
	}
	lengths := []uint64{uint64(st.Size())}

	md, err := readMetadata(f0, lengths[0])
	if err != nil {
		closeAll()
		return nil, err
	}

	volPaths := []string{path}
	dir := filepath.Dir(path)
	for _, raw := range md.VolumeNames {
		name, err := pathutil.VolumeName(raw)
		if err != nil {
			closeAll()
			return nil, err
		}
		vp := filepath.Join(dir, name)
		f, err := os.Open(vp)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("dzip: open continuation volume: %w", err)
		}
		vst, err := f.Stat()
		if err != nil {
			f.Close()
			closeAll()
			return nil, err
		}
		files = append(files, f)
		lengths = append(lengths, uint64(vst.Size()))
		volPaths = append(volPaths, vp)
	}

	readers := make([]io.ReaderAt, len(files))
	for i, f := range files {
		readers[i] = f
	}
	mapper, err := volume.NewMapper(readers, lengths)
	if err != nil {
		closeAll()
		return nil, err
	}

	// Repair runs exactly once, before any extraction is permitted, and
	// produces a fresh corrected entry set.
	entries, report, err := repair.Run(md.Entries, md.Size, mapper.Size())
	if err != nil {
		closeAll()
		return nil, err
	}

	a := &Archive{
		header:   md.Header,
		entries:  entries,
		volPaths: volPaths,
		mapper:   mapper,
		files:    files,
		report:   report,
		metaSize: md.Size,
		cfg:      cfg,
	}
	if !report.Empty() {
		a.log().Warn("header repair substituted size fields",
			"path", path, "corrections", len(report.Corrections))
	}
	return a, nil
}

// readMetadata decodes the metadata region from the front of volume 0,
// growing the prefix read until a complete decode or the volume ends.
func readMetadata(f *os.File, volLen uint64) (format.Metadata, error) {
	read := uint64(metaReadInit)
	for {
		read = min(read, volLen)
		buf := make([]byte, read)
		if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			return format.Metadata{}, err
		}
		md, err := format.DecodeMetadata(buf)
		if err == nil {
			return md, nil
		}
		// A record that runs past the buffer looks truncated (or makes the
		// entry count look oversized) until more of the volume is read.
		grow := errors.Is(err, dztype.ErrTruncated) || errors.Is(err, dztype.ErrEntryCountOverflow)
		if grow && read < volLen {
			read *= 2
			continue
		}
		return format.Metadata{}, err
	}
}

// Close closes all volume handles.
func (a *Archive) Close() error {
	var firstErr error
	for _, f := range a.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Header returns the decoded archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns metadata snapshots for every entry in declared order,
// without extracting anything.
func (a *Archive) Entries() []EntryInfo {
	infos := make([]EntryInfo, len(a.entries))
	for i, e := range a.entries {
		infos[i] = entryInfo(i, e)
	}
	return infos
}

// RepairReport returns the corrections applied during Open. Empty when the
// archive's declared sizes were already consistent.
func (a *Archive) RepairReport() RepairReport {
	return a.report
}

// Volumes returns the paths of all opened volume files, base volume first.
func (a *Archive) Volumes() []string {
	return a.volPaths
}

// ExtractEntry decompresses one entry and writes its plain bytes to w in
// chunk order. Chunk decompression runs on the worker pool; output order is
// byte-identical regardless of worker count.
func (a *Archive) ExtractEntry(ctx context.Context, index int, w io.Writer) error {
	if index < 0 || index >= len(a.entries) {
		return fmt.Errorf("dzip: entry index %d out of range [0, %d)", index, len(a.entries))
	}
	e := a.entries[index]

	// Chunks are processed in windows: compressed bytes are read up front
	// (workers never touch volume handles), decompressed in parallel into
	// indexed slots, then flushed sequentially. Window size bounds memory.
	window := max(a.workers()*2, 8)
	for start := 0; start < len(e.Chunks); start += window {
		chunks := e.Chunks[start:min(start+window, len(e.Chunks))]

		comp := make([][]byte, len(chunks))
		for j, c := range chunks {
			b, err := a.mapper.ReadSpan(c.Offset, uint64(c.CompressedLen))
			if err != nil {
				return fmt.Errorf("dzip: entry %d chunk %d: %w", index, start+j, err)
			}
			comp[j] = b
		}

		out := make([][]byte, len(chunks))
		err := pipeline.Run(ctx, len(chunks), a.workers(), func(j int) error {
			b, err := codec.Decompress(e.Method, comp[j], int(chunks[j].UncompressedLen))
			if err != nil {
				return fmt.Errorf("dzip: entry %d chunk %d: %w", index, start+j, err)
			}
			out[j] = b
			return nil
		})
		if err != nil {
			return err
		}

		for _, b := range out {
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sink receives extracted entries. Create is called once per entry, in
// declared order; the returned writer is closed after the entry's bytes
// (possibly none, on failure) are written.
type Sink interface {
	Create(info EntryInfo) (io.WriteCloser, error)
}

// EntryResult reports the outcome of one entry in a batch extraction.
type EntryResult struct {
	Info EntryInfo
	// Err is nil on success. Decompression and per-entry I/O failures are
	// isolated here; they never abort the batch.
	Err error
}

// Extract decompresses the selected entries (all of them when indices is
// nil) into the sink. Per-entry failures are isolated: each entry reports
// success or failure independently, so a corrupt entry does not prevent
// extraction of the others.
//
// The returned error is non-nil only for cancellation, in which case the
// results cover the entries attempted before the cancellation point.
func (a *Archive) Extract(ctx context.Context, indices []int, sink Sink) ([]EntryResult, error) {
	if indices == nil {
		indices = make([]int, len(a.entries))
		for i := range indices {
			indices[i] = i
		}
	}

	results := make([]EntryResult, 0, len(indices))
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return results, context.Cause(ctx)
		}
		res := EntryResult{}
		if i < 0 || i >= len(a.entries) {
			res.Info = EntryInfo{Index: i}
			res.Err = fmt.Errorf("dzip: entry index %d out of range [0, %d)", i, len(a.entries))
			results = append(results, res)
			continue
		}
		res.Info = entryInfo(i, a.entries[i])
		res.Err = a.extractTo(ctx, i, res.Info, sink)
		if res.Err != nil && errors.Is(res.Err, context.Canceled) {
			results = append(results, res)
			return results, context.Cause(ctx)
		}
		if res.Err != nil {
			a.log().Warn("entry extraction failed", "index", i, "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Archive) extractTo(ctx context.Context, index int, info EntryInfo, sink Sink) error {
	w, err := sink.Create(info)
	if err != nil {
		return err
	}
	if err := a.ExtractEntry(ctx, index, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// VerifyResult reports the outcome of verifying one entry.
type VerifyResult struct {
	Info EntryInfo
	// Digest is the canonical digest of the entry's uncompressed content.
	// Empty when Err is non-nil.
	Digest digest.Digest
	Err    error
}

// Verify decompresses every entry without writing output, reporting a
// content digest or the decode failure per entry.
func (a *Archive) Verify(ctx context.Context) ([]VerifyResult, error) {
	results := make([]VerifyResult, 0, len(a.entries))
	for i, e := range a.entries {
		if err := ctx.Err(); err != nil {
			return results, context.Cause(ctx)
		}
		res := VerifyResult{Info: entryInfo(i, e)}
		digester := digest.Canonical.Digester()
		if err := a.ExtractEntry(ctx, i, digester.Hash()); err != nil {
			if errors.Is(err, context.Canceled) {
				res.Err = err
				results = append(results, res)
				return results, context.Cause(ctx)
			}
			res.Err = err
		} else {
			res.Digest = digester.Digest()
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Archive) workers() int {
	if a.cfg.workers > 0 {
		return a.cfg.workers
	}
	return runtime.GOMAXPROCS(0)
}

func (a *Archive) log() *slog.Logger {
	if a.cfg.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.cfg.logger
}
