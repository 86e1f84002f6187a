// Package volume presents one logical, contiguous address space over N
// physical volume files whose boundaries are arbitrary with respect to
// entry and chunk boundaries.
//
// Volumes are kept as an ordered array with precomputed cumulative-length
// prefix sums; offsets resolve by binary search, never by chasing file
// handles. Volume handles are owned exclusively by this package's types and
// are not shared across worker goroutines.
package volume

import (
	"fmt"
	"io"

	"github.com/meigma/dzip/internal/dztype"
)

// Mapper maps logical byte offsets to (volume index, local offset) pairs
// and serves reads that straddle volume boundaries transparently.
type Mapper struct {
	readers []io.ReaderAt
	// cum[i] is the logical offset where volume i begins; cum[len] is the
	// total address-space size.
	cum []uint64
}

// NewMapper builds a mapper over ordered volumes. The readers and lengths
// slices must be the same, non-zero length.
func NewMapper(readers []io.ReaderAt, lengths []uint64) (*Mapper, error) {
	if len(readers) == 0 || len(readers) != len(lengths) {
		return nil, fmt.Errorf("dzip: mapper needs matching readers and lengths, got %d and %d", len(readers), len(lengths))
	}
	cum := make([]uint64, len(lengths)+1)
	for i, l := range lengths {
		next := cum[i] + l
		if next < cum[i] {
			return nil, dztype.ErrSizeOverflow
		}
		cum[i+1] = next
	}
	return &Mapper{readers: readers, cum: cum}, nil
}

// Size returns the total logical address-space length.
func (m *Mapper) Size() uint64 {
	return m.cum[len(m.cum)-1]
}

// Resolve maps a logical offset to its volume index and local offset.
// Every offset in [0, Size()) resolves to exactly one physical location.
func (m *Mapper) Resolve(off uint64) (vol int, local uint64, err error) {
	if off >= m.Size() {
		return 0, 0, dztype.ErrArchiveTruncated
	}
	// Find the last volume starting at or before off. Skips zero-length
	// volumes, whose start offset equals the next volume's.
	lo, hi := 0, len(m.readers)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.cum[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for m.cum[lo+1] == m.cum[lo] { // zero-length volume, off belongs to a later one
		lo++
	}
	return lo, off - m.cum[lo], nil
}

// ReadSpan reads n logical bytes starting at off, issuing one physical read
// per volume the span touches.
func (m *Mapper) ReadSpan(off, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if off+n < off || off+n > m.Size() {
		return nil, fmt.Errorf("%w: span [%d, %d) outside %d-byte archive", dztype.ErrArchiveTruncated, off, off+n, m.Size())
	}
	buf := make([]byte, n)
	if err := m.ReadInto(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills p with logical bytes starting at off.
func (m *Mapper) ReadInto(p []byte, off uint64) error {
	end := off + uint64(len(p))
	if end < off || end > m.Size() {
		return dztype.ErrArchiveTruncated
	}
	for len(p) > 0 {
		vol, local, err := m.Resolve(off)
		if err != nil {
			return err
		}
		avail := m.cum[vol+1] - m.cum[vol] - local
		want := min(uint64(len(p)), avail)
		if _, err := m.readers[vol].ReadAt(p[:want], int64(local)); err != nil {
			return fmt.Errorf("dzip: volume %d read at %d: %w", vol, local, err)
		}
		p = p[want:]
		off += want
	}
	return nil
}

// Allocator opens the physical file for a volume index on demand.
type Allocator func(index int) (io.WriteCloser, error)

// Writer appends bytes across volume files, splitting whenever the running
// volume length reaches the configured split size. A chunk's compressed
// bytes may legitimately straddle two volumes.
type Writer struct {
	alloc     Allocator
	splitSize uint64

	cur     io.WriteCloser
	curIdx  int
	curLen  uint64
	total   uint64
	lengths []uint64
}

// NewWriter returns an append-only writer. splitSize zero means a single
// unbounded volume.
func NewWriter(splitSize uint64, alloc Allocator) *Writer {
	return &Writer{alloc: alloc, splitSize: splitSize}
}

// Offset returns the logical offset the next byte will be written at.
func (w *Writer) Offset() uint64 {
	return w.total
}

// VolumeCount returns the number of volumes allocated so far.
func (w *Writer) VolumeCount() int {
	if w.cur == nil && w.curLen == 0 {
		return w.curIdx
	}
	return w.curIdx + 1
}

// Write implements io.Writer over the logical address space.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if w.cur == nil {
			f, err := w.alloc(w.curIdx)
			if err != nil {
				return written, err
			}
			w.cur = f
			w.curLen = 0
		}
		want := uint64(len(p))
		if w.splitSize > 0 {
			room := w.splitSize - w.curLen
			want = min(want, room)
		}
		n, err := w.cur.Write(p[:want])
		w.curLen += uint64(n)
		w.total += uint64(n)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
		if w.splitSize > 0 && w.curLen == w.splitSize {
			if err := w.rollover(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *Writer) rollover() error {
	w.lengths = append(w.lengths, w.curLen)
	err := w.cur.Close()
	w.cur = nil
	w.curIdx++
	w.curLen = 0
	if err != nil {
		return fmt.Errorf("dzip: close volume %d: %w", w.curIdx-1, err)
	}
	return nil
}

// Close flushes and closes the current volume. Lengths of all written
// volumes remain available through Lengths.
func (w *Writer) Close() error {
	if w.cur == nil {
		return nil
	}
	w.lengths = append(w.lengths, w.curLen)
	err := w.cur.Close()
	w.cur = nil
	return err
}

// Lengths returns the byte length of every volume written, in order.
func (w *Writer) Lengths() []uint64 {
	return w.lengths
}
