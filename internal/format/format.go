// Package format implements byte-exact translation between the dzip on-disk
// layout and in-memory header, entry, and chunk values.
//
// All functions are pure transformations over byte slices; the reader and
// writer source those bytes through the volume mapper. Layout is
// little-endian throughout.
package format

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/dzip/internal/dztype"
)

// On-disk layout constants.
const (
	// Magic is the fixed archive signature ("DTRZ" little-endian).
	Magic uint32 = 0x5A525444

	// Version is the only format version this build reads and writes.
	Version uint16 = 1

	// HeaderSize is the fixed byte length of the archive header.
	HeaderSize = 16

	// entryFixedSize is the entry record length after the path field:
	// uncompressed size u64, compressed size u64, method u16,
	// data offset u64, chunk count u32.
	entryFixedSize = 30

	// chunkRecordSize is the explicit chunk record length:
	// logical offset u64, compressed length u32, uncompressed length u32.
	chunkRecordSize = 16

	// minEntrySize is the smallest possible entry record: empty path,
	// no explicit chunks.
	minEntrySize = 2 + entryFixedSize
)

// DecodeHeader validates the magic signature and version before trusting
// any subsequent length field.
func DecodeHeader(b []byte) (dztype.Header, error) {
	if len(b) < HeaderSize {
		return dztype.Header{}, dztype.ErrTruncated
	}
	if binary.LittleEndian.Uint32(b[0:4]) != Magic {
		return dztype.Header{}, dztype.ErrBadMagic
	}
	h := dztype.Header{
		Version:     binary.LittleEndian.Uint16(b[4:6]),
		EntryCount:  binary.LittleEndian.Uint32(b[6:10]),
		VolumeCount: binary.LittleEndian.Uint16(b[10:12]),
		ChunkSize:   binary.LittleEndian.Uint32(b[12:16]),
	}
	if h.Version != Version {
		return dztype.Header{}, fmt.Errorf("%w: %d", dztype.ErrUnsupportedVersion, h.Version)
	}
	if h.VolumeCount == 0 {
		return dztype.Header{}, fmt.Errorf("%w: zero volume count", dztype.ErrTruncated)
	}
	return h, nil
}

// EncodeHeader is the exact inverse of DecodeHeader.
func EncodeHeader(h dztype.Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	binary.LittleEndian.PutUint32(b[6:10], h.EntryCount)
	binary.LittleEndian.PutUint16(b[10:12], h.VolumeCount)
	binary.LittleEndian.PutUint32(b[12:16], h.ChunkSize)
	return b
}

// DecodeEntries decodes the entry table that follows the header. It returns
// the entries and the number of bytes consumed.
//
// Path bytes are copied verbatim with no separator translation. Entries with
// a zero chunk count use implicit fixed-size chunking: chunk boundaries are
// derived arithmetically from the header chunk size, which is only coherent
// for stored entries where compressed and uncompressed lengths coincide.
func DecodeEntries(b []byte, h dztype.Header) ([]dztype.Entry, int, error) {
	if uint64(h.EntryCount)*minEntrySize > uint64(len(b)) {
		return nil, 0, fmt.Errorf("%w: %d entries", dztype.ErrEntryCountOverflow, h.EntryCount)
	}

	entries := make([]dztype.Entry, 0, h.EntryCount)
	pos := 0
	for i := 0; i < int(h.EntryCount); i++ {
		e, n, err := decodeEntry(b[pos:], h)
		if err != nil {
			return nil, 0, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
		pos += n
	}
	return entries, pos, nil
}

func decodeEntry(b []byte, h dztype.Header) (dztype.Entry, int, error) {
	if len(b) < 2 {
		return dztype.Entry{}, 0, dztype.ErrTruncated
	}
	pathLen := int(binary.LittleEndian.Uint16(b[0:2]))
	pos := 2
	if len(b) < pos+pathLen+entryFixedSize {
		return dztype.Entry{}, 0, dztype.ErrTruncated
	}
	e := dztype.Entry{
		Path: append([]byte(nil), b[pos:pos+pathLen]...),
	}
	pos += pathLen

	e.UncompressedSize = binary.LittleEndian.Uint64(b[pos : pos+8])
	e.CompressedSize = binary.LittleEndian.Uint64(b[pos+8 : pos+16])
	tag := binary.LittleEndian.Uint16(b[pos+16 : pos+18])
	e.Offset = binary.LittleEndian.Uint64(b[pos+18 : pos+26])
	chunkCount := binary.LittleEndian.Uint32(b[pos+26 : pos+30])
	pos += entryFixedSize

	method, ok := dztype.MethodFromTag(tag)
	if !ok {
		return dztype.Entry{}, 0, fmt.Errorf("%w: tag 0x%04x", dztype.ErrUnsupportedMethod, tag)
	}
	e.Method = method

	if chunkCount == 0 {
		chunks, err := implicitChunks(e, h)
		if err != nil {
			return dztype.Entry{}, 0, err
		}
		e.Chunks = chunks
		return e, pos, nil
	}

	if uint64(chunkCount)*chunkRecordSize > uint64(len(b)-pos) {
		return dztype.Entry{}, 0, dztype.ErrTruncated
	}
	e.Chunks = make([]dztype.Chunk, chunkCount)
	for j := range e.Chunks {
		o := pos + j*chunkRecordSize
		e.Chunks[j] = dztype.Chunk{
			Offset:          binary.LittleEndian.Uint64(b[o : o+8]),
			CompressedLen:   binary.LittleEndian.Uint32(b[o+8 : o+12]),
			UncompressedLen: binary.LittleEndian.Uint32(b[o+12 : o+16]),
		}
	}
	pos += int(chunkCount) * chunkRecordSize
	return e, pos, nil
}

// implicitChunks materializes fixed-size chunk descriptors for an entry
// without an explicit chunk table. The final chunk takes the remainder.
func implicitChunks(e dztype.Entry, h dztype.Header) ([]dztype.Chunk, error) {
	if e.UncompressedSize == 0 {
		return nil, nil
	}
	if e.Method != dztype.MethodStore {
		return nil, fmt.Errorf("%w: implicit chunking with method %s", dztype.ErrUnsupportedMethod, e.Method)
	}
	if h.ChunkSize == 0 {
		return nil, fmt.Errorf("%w: implicit chunking with zero chunk size", dztype.ErrTruncated)
	}
	size := uint64(h.ChunkSize)
	n := (e.UncompressedSize + size - 1) / size
	chunks := make([]dztype.Chunk, 0, n)
	off := e.Offset
	remaining := e.UncompressedSize
	for remaining > 0 {
		l := min(remaining, size)
		chunks = append(chunks, dztype.Chunk{
			Offset:          off,
			CompressedLen:   uint32(l),
			UncompressedLen: uint32(l),
		})
		off += l
		remaining -= l
	}
	return chunks, nil
}

// EncodeEntries is the exact inverse of DecodeEntries for entries carrying
// explicit chunk tables (the only shape this writer produces).
func EncodeEntries(entries []dztype.Entry) ([]byte, error) {
	b := make([]byte, 0, entriesSize(entries))
	for i, e := range entries {
		if len(e.Path) > 0xFFFF {
			return nil, fmt.Errorf("entry %d: path length %d: %w", i, len(e.Path), dztype.ErrSizeOverflow)
		}
		var fixed [entryFixedSize]byte
		b = binary.LittleEndian.AppendUint16(b, uint16(len(e.Path)))
		b = append(b, e.Path...)
		binary.LittleEndian.PutUint64(fixed[0:8], e.UncompressedSize)
		binary.LittleEndian.PutUint64(fixed[8:16], e.CompressedSize)
		binary.LittleEndian.PutUint16(fixed[16:18], e.Method.Tag())
		binary.LittleEndian.PutUint64(fixed[18:26], e.Offset)
		binary.LittleEndian.PutUint32(fixed[26:30], uint32(len(e.Chunks)))
		b = append(b, fixed[:]...)
		for _, c := range e.Chunks {
			b = binary.LittleEndian.AppendUint64(b, c.Offset)
			b = binary.LittleEndian.AppendUint32(b, c.CompressedLen)
			b = binary.LittleEndian.AppendUint32(b, c.UncompressedLen)
		}
	}
	return b, nil
}

// DecodeVolumeNames decodes the continuation volume name table. Volume 0 is
// the file being opened, so the table holds count-1 names. Returns the raw
// name byte slices and the bytes consumed.
func DecodeVolumeNames(b []byte, volumeCount int) ([][]byte, int, error) {
	names := make([][]byte, 0, max(volumeCount-1, 0))
	pos := 0
	for i := 0; i < volumeCount-1; i++ {
		if len(b)-pos < 2 {
			return nil, 0, dztype.ErrTruncated
		}
		n := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
		pos += 2
		if len(b)-pos < n {
			return nil, 0, dztype.ErrTruncated
		}
		names = append(names, append([]byte(nil), b[pos:pos+n]...))
		pos += n
	}
	return names, pos, nil
}

// EncodeVolumeNames is the exact inverse of DecodeVolumeNames.
func EncodeVolumeNames(names [][]byte) ([]byte, error) {
	b := make([]byte, 0, volumeNamesSize(names))
	for i, name := range names {
		if len(name) > 0xFFFF {
			return nil, fmt.Errorf("volume name %d: %w", i, dztype.ErrSizeOverflow)
		}
		b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
		b = append(b, name...)
	}
	return b, nil
}

// MetadataSize computes the serialized metadata region length for entries
// with explicit chunk tables, without encoding. The writer reserves this
// region before streaming data.
func MetadataSize(entries []dztype.Entry, volumeNames [][]byte) uint64 {
	return HeaderSize + entriesSize(entries) + volumeNamesSize(volumeNames)
}

func entriesSize(entries []dztype.Entry) uint64 {
	var n uint64
	for _, e := range entries {
		n += 2 + uint64(len(e.Path)) + entryFixedSize + uint64(len(e.Chunks))*chunkRecordSize
	}
	return n
}

func volumeNamesSize(names [][]byte) uint64 {
	var n uint64
	for _, name := range names {
		n += 2 + uint64(len(name))
	}
	return n
}

// Metadata is the fully decoded metadata region.
type Metadata struct {
	Header      dztype.Header
	Entries     []dztype.Entry
	VolumeNames [][]byte
	// Size is the byte length of the serialized metadata region.
	Size uint64
}

// DecodeMetadata decodes the header, entry table, and volume name table
// from the start of the archive's byte stream.
func DecodeMetadata(b []byte) (Metadata, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Metadata{}, err
	}
	entries, n, err := DecodeEntries(b[HeaderSize:], h)
	if err != nil {
		return Metadata{}, err
	}
	names, vn, err := DecodeVolumeNames(b[HeaderSize+n:], int(h.VolumeCount))
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Header:      h,
		Entries:     entries,
		VolumeNames: names,
		Size:        uint64(HeaderSize + n + vn),
	}, nil
}

// EncodeMetadata serializes the full metadata region, layout-identical to
// what DecodeMetadata accepts.
func EncodeMetadata(m Metadata) ([]byte, error) {
	eb, err := EncodeEntries(m.Entries)
	if err != nil {
		return nil, err
	}
	nb, err := EncodeVolumeNames(m.VolumeNames)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, HeaderSize+len(eb)+len(nb))
	b = append(b, EncodeHeader(m.Header)...)
	b = append(b, eb...)
	b = append(b, nb...)
	return b, nil
}
