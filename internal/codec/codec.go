// Package codec provides a uniform compress/decompress interface over the
// archive's pluggable chunk codecs, keyed by method tag.
//
// Codec work is CPU-bound and operates on in-memory buffers only; both
// functions are safe for concurrent use by pipeline workers.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"

	"github.com/meigma/dzip/internal/dztype"
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCoders lazily builds the shared zstd encoder/decoder pair. EncodeAll
// and DecodeAll are safe for concurrent use on a single instance.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

// Compress encodes src with the given method and returns the stored bytes.
//
// MethodZero stores nothing and requires all-zero input. MethodStore
// returns src unchanged; the caller must not mutate it afterwards.
func Compress(m dztype.Method, src []byte) ([]byte, error) {
	switch m {
	case dztype.MethodStore:
		return src, nil
	case dztype.MethodZero:
		for _, b := range src {
			if b != 0 {
				return nil, fmt.Errorf("%w: zero method over non-zero bytes", dztype.ErrCompression)
			}
		}
		return nil, nil
	case dztype.MethodZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", dztype.ErrCompression, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", dztype.ErrCompression, err)
		}
		return buf.Bytes(), nil
	case dztype.MethodBzip2:
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", dztype.ErrCompression, err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", dztype.ErrCompression, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", dztype.ErrCompression, err)
		}
		return buf.Bytes(), nil
	case dztype.MethodLzma:
		var buf bytes.Buffer
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", dztype.ErrCompression, err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", dztype.ErrCompression, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", dztype.ErrCompression, err)
		}
		return buf.Bytes(), nil
	case dztype.MethodZstd:
		enc, _, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", dztype.ErrCompression, err)
		}
		return enc.EncodeAll(src, nil), nil
	case dztype.MethodDZRange:
		return nil, fmt.Errorf("%w: dz-range encoding is not supported", dztype.ErrCompression)
	default:
		return nil, fmt.Errorf("%w: %s", dztype.ErrUnsupportedMethod, m)
	}
}

// Decompress decodes src with the given method, verifying the result is
// exactly expectedLen bytes with no trailing payload.
func Decompress(m dztype.Method, src []byte, expectedLen int) ([]byte, error) {
	switch m {
	case dztype.MethodStore:
		if len(src) != expectedLen {
			return nil, fmt.Errorf("%w: stored chunk is %d bytes, want %d", dztype.ErrDecompression, len(src), expectedLen)
		}
		return src, nil
	case dztype.MethodZero:
		if len(src) != 0 {
			return nil, fmt.Errorf("%w: zero chunk carries %d stored bytes", dztype.ErrDecompression, len(src))
		}
		return make([]byte, expectedLen), nil
	case dztype.MethodZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", dztype.ErrDecompression, err)
		}
		defer r.Close()
		return readExactly(r, expectedLen, "zlib")
	case dztype.MethodBzip2:
		r, err := bzip2.NewReader(bytes.NewReader(src), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", dztype.ErrDecompression, err)
		}
		defer r.Close()
		return readExactly(r, expectedLen, "bzip2")
	case dztype.MethodLzma:
		r, err := lzma.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", dztype.ErrDecompression, err)
		}
		return readExactly(r, expectedLen, "lzma")
	case dztype.MethodZstd:
		_, dec, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", dztype.ErrDecompression, err)
		}
		out, err := dec.DecodeAll(src, make([]byte, 0, expectedLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", dztype.ErrDecompression, err)
		}
		if len(out) != expectedLen {
			return nil, fmt.Errorf("%w: zstd chunk expands to %d bytes, want %d", dztype.ErrDecompression, len(out), expectedLen)
		}
		return out, nil
	case dztype.MethodDZRange:
		return nil, fmt.Errorf("%w: dz-range decoding is not supported", dztype.ErrDecompression)
	default:
		return nil, fmt.Errorf("%w: %s", dztype.ErrUnsupportedMethod, m)
	}
}

// readExactly reads expectedLen bytes from r and verifies the stream ends
// there. A short or long stream indicates a corrupt chunk.
func readExactly(r io.Reader, expectedLen int, name string) ([]byte, error) {
	out := make([]byte, expectedLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %s chunk ends early: %v", dztype.ErrDecompression, name, err)
	}
	var extra [1]byte
	if n, err := r.Read(extra[:]); n > 0 || (err != nil && err != io.EOF) {
		return nil, fmt.Errorf("%w: %s chunk has trailing data", dztype.ErrDecompression, name)
	}
	return out, nil
}
