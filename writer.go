package dzip

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/meigma/dzip/internal/codec"
	"github.com/meigma/dzip/internal/dztype"
	"github.com/meigma/dzip/internal/format"
	"github.com/meigma/dzip/internal/pipeline"
	"github.com/meigma/dzip/internal/volume"
)

// maxVolumes bounds how many volumes one pack job may produce; the
// generated continuation name suffix is two digits wide.
const maxVolumes = 99

// Source is one file to pack.
type Source struct {
	// Path is the archive path, raw bytes in the archive's own separator
	// convention. Stored verbatim.
	Path []byte
	// File is the host file supplying the content.
	File string
	// Method compresses this source's chunks.
	Method Method
}

// Job is a pack job specification: plain data supplied by the calling
// layer, already validated for host-path concerns.
type Job struct {
	// Output is the base volume path to create. Continuation volumes are
	// created next to it with numbered suffixes.
	Output string
	// Sources lists the files to pack, in archive entry order.
	Sources []Source
	// ChunkSize is the compression unit size. Zero selects
	// DefaultChunkSize.
	ChunkSize uint32
	// VolumeSize is the per-volume split threshold. Zero writes a single
	// unbounded volume. When set it must leave room for the metadata
	// region in volume 0.
	VolumeSize uint64
}

// PackResult describes a completed pack job.
type PackResult struct {
	Entries []EntryInfo
	// Volumes are the paths of all volume files written, base first.
	Volumes []string
	// UncompressedTotal and CompressedTotal are data-region byte counts.
	UncompressedTotal uint64
	CompressedTotal   uint64
}

// packer holds state for one pack job.
type packer struct {
	cfg packConfig
	job Job
}

// Pack builds a new archive from the job's source files.
//
// Chunks are compressed on the worker pool, spilled in entry order to a
// temporary file beside the output, and only then — once every compressed
// size is known — is the metadata region encoded and the byte stream split
// across volume files. Memory use is bounded by the chunk window, not the
// archive size; the spill file keeps volumes strictly append-only.
func Pack(ctx context.Context, job Job, opts ...PackOption) (*PackResult, error) {
	cfg := packConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &packer{cfg: cfg, job: job}

	if err := p.validate(); err != nil {
		return nil, err
	}
	chunkSize := job.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	spill, err := os.CreateTemp(filepath.Dir(job.Output), ".dzip-pack-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		spill.Close()
		os.Remove(spill.Name())
	}()

	entries, dataSize, usizeTotal, err := p.compressSources(ctx, spill, chunkSize)
	if err != nil {
		return nil, err
	}

	volNames, metaSize, err := p.layoutVolumes(entries, dataSize)
	if err != nil {
		return nil, err
	}

	// Entry and chunk offsets were tracked relative to the data region;
	// rebase them to the logical address space.
	for i := range entries {
		entries[i].Offset += metaSize
		for j := range entries[i].Chunks {
			entries[i].Chunks[j].Offset += metaSize
		}
	}

	meta := format.Metadata{
		Header: dztype.Header{
			Version:     format.Version,
			EntryCount:  uint32(len(entries)),
			VolumeCount: uint16(len(volNames) + 1),
			ChunkSize:   chunkSize,
		},
		Entries:     entries,
		VolumeNames: volNames,
	}
	metaBytes, err := format.EncodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	volPaths, err := p.writeVolumes(spill, metaBytes, volNames)
	if err != nil {
		return nil, err
	}

	p.log().Info("archive packed",
		"output", job.Output,
		"entries", len(entries),
		"volumes", len(volPaths),
		"uncompressed", usizeTotal,
		"compressed", dataSize)

	infos := make([]EntryInfo, len(entries))
	for i, e := range entries {
		infos[i] = entryInfo(i, e)
	}
	return &PackResult{
		Entries:           infos,
		Volumes:           volPaths,
		UncompressedTotal: usizeTotal,
		CompressedTotal:   dataSize,
	}, nil
}

func (p *packer) validate() error {
	if p.job.Output == "" {
		return fmt.Errorf("dzip: pack job has no output path")
	}
	if len(p.job.Sources) == 0 {
		return fmt.Errorf("dzip: pack job has no sources")
	}
	for i, src := range p.job.Sources {
		if len(src.Path) == 0 {
			return fmt.Errorf("dzip: source %d has an empty archive path", i)
		}
		if len(src.Path) > 0xFFFF {
			return fmt.Errorf("dzip: source %d: %w", i, dztype.ErrSizeOverflow)
		}
		switch src.Method {
		case MethodStore, MethodZero, MethodZlib, MethodBzip2, MethodLzma, MethodZstd:
		default:
			return fmt.Errorf("dzip: source %d: %w: %s", i, dztype.ErrUnsupportedMethod, src.Method)
		}
	}
	return nil
}

// compressSources streams every source through the compression pipeline
// into the spill file, returning entries with data-region-relative offsets.
func (p *packer) compressSources(ctx context.Context, spill io.Writer, chunkSize uint32) (entries []dztype.Entry, dataSize, usizeTotal uint64, err error) {
	entries = make([]dztype.Entry, 0, len(p.job.Sources))
	var cursor uint64

	for i, src := range p.job.Sources {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, context.Cause(ctx)
		}
		e, n, err := p.compressSource(ctx, spill, src, chunkSize, cursor)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("dzip: pack %q: %w", src.File, err)
		}
		p.reportProgress(ProgressEvent{
			Stage:      StageCompressing,
			Path:       src.Path,
			BytesDone:  cursor + n,
			FilesDone:  i + 1,
			FilesTotal: len(p.job.Sources),
		})
		usizeTotal += e.UncompressedSize
		cursor += n
		entries = append(entries, e)
	}
	return entries, cursor, usizeTotal, nil
}

// compressSource chunks one file, compresses the chunks in parallel
// windows, and appends the results in chunk order.
func (p *packer) compressSource(ctx context.Context, spill io.Writer, src Source, chunkSize uint32, cursor uint64) (dztype.Entry, uint64, error) {
	f, err := os.Open(src.File)
	if err != nil {
		return dztype.Entry{}, 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return dztype.Entry{}, 0, err
	}
	size := uint64(st.Size())

	e := dztype.Entry{
		Path:             append([]byte(nil), src.Path...),
		UncompressedSize: size,
		Method:           src.Method,
		Offset:           cursor,
	}

	window := max(p.workers()*2, 8)
	var written uint64
	var readTotal uint64

	for readTotal < size {
		if err := ctx.Err(); err != nil {
			return dztype.Entry{}, 0, context.Cause(ctx)
		}

		// Read up to one window of plain chunks.
		plain := make([][]byte, 0, window)
		for len(plain) < window && readTotal < size {
			l := min(size-readTotal, uint64(chunkSize))
			buf := make([]byte, l)
			if _, err := io.ReadFull(f, buf); err != nil {
				return dztype.Entry{}, 0, fmt.Errorf("source changed during packing: %w", err)
			}
			readTotal += l
			plain = append(plain, buf)
		}

		comp := make([][]byte, len(plain))
		err := pipeline.Run(ctx, len(plain), p.workers(), func(j int) error {
			b, err := codec.Compress(src.Method, plain[j])
			if err != nil {
				return err
			}
			comp[j] = b
			return nil
		})
		if err != nil {
			return dztype.Entry{}, 0, err
		}

		for j, b := range comp {
			e.Chunks = append(e.Chunks, dztype.Chunk{
				Offset:          cursor + written,
				CompressedLen:   uint32(len(b)),
				UncompressedLen: uint32(len(plain[j])),
			})
			if _, err := spill.Write(b); err != nil {
				return dztype.Entry{}, 0, err
			}
			written += uint64(len(b))
		}
	}

	e.CompressedSize = written
	return e, written, nil
}

// layoutVolumes finds the smallest volume count whose generated name table
// still lets the metadata region plus data fit, and returns the
// continuation names with the final metadata size.
func (p *packer) layoutVolumes(entries []dztype.Entry, dataSize uint64) ([][]byte, uint64, error) {
	if p.job.VolumeSize == 0 {
		return nil, format.MetadataSize(entries, nil), nil
	}

	count := 1
	for {
		names := continuationNames(p.job.Output, count)
		metaSize := format.MetadataSize(entries, names)
		if metaSize > p.job.VolumeSize {
			return nil, 0, fmt.Errorf("dzip: volume size %d smaller than %d-byte metadata region", p.job.VolumeSize, metaSize)
		}
		total := metaSize + dataSize
		need := int((total + p.job.VolumeSize - 1) / p.job.VolumeSize)
		if need <= count {
			return names, metaSize, nil
		}
		if need > maxVolumes {
			return nil, 0, fmt.Errorf("dzip: pack job needs %d volumes, limit is %d", need, maxVolumes)
		}
		count = need
	}
}

// continuationNames generates the volume name table for 1..count-1.
func continuationNames(output string, count int) [][]byte {
	base := filepath.Base(output)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	names := make([][]byte, 0, max(count-1, 0))
	for i := 1; i < count; i++ {
		names = append(names, fmt.Appendf(nil, "%s.d%02d", stem, i))
	}
	return names
}

// writeVolumes streams the metadata region and the spill file through the
// splitting volume writer.
func (p *packer) writeVolumes(spill *os.File, metaBytes []byte, volNames [][]byte) ([]string, error) {
	dir := filepath.Dir(p.job.Output)
	volPaths := make([]string, 0, len(volNames)+1)

	vw := volume.NewWriter(p.job.VolumeSize, func(index int) (io.WriteCloser, error) {
		var vp string
		if index == 0 {
			vp = p.job.Output
		} else {
			if index > len(volNames) {
				return nil, fmt.Errorf("dzip: volume %d exceeds the %d declared in the header", index, len(volNames)+1)
			}
			vp = filepath.Join(dir, string(volNames[index-1]))
		}
		f, err := os.Create(vp)
		if err != nil {
			return nil, err
		}
		volPaths = append(volPaths, vp)
		p.log().Debug("volume created", "path", vp, "index", index)
		return f, nil
	})

	if _, err := vw.Write(metaBytes); err != nil {
		vw.Close()
		return nil, err
	}
	if _, err := spill.Seek(0, io.SeekStart); err != nil {
		vw.Close()
		return nil, err
	}
	if _, err := io.Copy(vw, spill); err != nil {
		vw.Close()
		return nil, err
	}
	if err := vw.Close(); err != nil {
		return nil, err
	}
	p.reportProgress(ProgressEvent{Stage: StageWriting, BytesDone: vw.Offset()})
	return volPaths, nil
}

func (p *packer) workers() int {
	if p.cfg.workers > 0 {
		return p.cfg.workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *packer) reportProgress(ev ProgressEvent) {
	if p.cfg.progress != nil {
		p.cfg.progress(ev)
	}
}

func (p *packer) log() *slog.Logger {
	if p.cfg.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.cfg.logger
}
