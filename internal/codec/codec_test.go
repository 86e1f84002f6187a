package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/meigma/dzip/internal/dztype"
)

func testPayload() []byte {
	// Compressible but not trivial: repeated phrases with noise.
	rng := rand.New(rand.NewSource(42))
	var buf bytes.Buffer
	for buf.Len() < 8192 {
		buf.WriteString("the quick brown fox jumps over the lazy dog ")
		buf.WriteByte(byte(rng.Intn(256)))
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	payload := testPayload()
	methods := []dztype.Method{
		dztype.MethodStore,
		dztype.MethodZlib,
		dztype.MethodBzip2,
		dztype.MethodLzma,
		dztype.MethodZstd,
	}
	for _, m := range methods {
		m := m
		t.Run(m.String(), func(t *testing.T) {
			t.Parallel()

			compressed, err := Compress(m, payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if m != dztype.MethodStore && len(compressed) >= len(payload) {
				t.Fatalf("%s did not shrink %d-byte compressible input (%d bytes out)", m, len(payload), len(compressed))
			}
			out, err := Decompress(m, compressed, len(payload))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestZeroMethod(t *testing.T) {
	t.Parallel()

	zeros := make([]byte, 512)
	compressed, err := Compress(dztype.MethodZero, zeros)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) != 0 {
		t.Fatalf("zero method stored %d bytes, want 0", len(compressed))
	}
	out, err := Decompress(dztype.MethodZero, nil, 512)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(out) != 512 {
		t.Fatalf("expanded to %d bytes, want 512", len(out))
	}
	for _, b := range out {
		if b != 0 {
			t.Fatal("expanded bytes are not all zero")
		}
	}

	t.Run("non-zero input rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := Compress(dztype.MethodZero, []byte{0, 0, 1}); !errors.Is(err, dztype.ErrCompression) {
			t.Fatalf("error = %v, want ErrCompression", err)
		}
	})

	t.Run("stored bytes rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := Decompress(dztype.MethodZero, []byte{1}, 1); !errors.Is(err, dztype.ErrDecompression) {
			t.Fatalf("error = %v, want ErrDecompression", err)
		}
	})
}

func TestDecompressCorrupt(t *testing.T) {
	t.Parallel()

	payload := testPayload()
	methods := []dztype.Method{
		dztype.MethodZlib,
		dztype.MethodBzip2,
		dztype.MethodLzma,
		dztype.MethodZstd,
	}
	for _, m := range methods {
		m := m
		t.Run(m.String(), func(t *testing.T) {
			t.Parallel()

			compressed, err := Compress(m, payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			// Garbage bytes.
			if _, err := Decompress(m, []byte{0xDE, 0xAD, 0xBE, 0xEF}, len(payload)); !errors.Is(err, dztype.ErrDecompression) {
				t.Fatalf("garbage: error = %v, want ErrDecompression", err)
			}

			// Wrong expected length.
			if _, err := Decompress(m, compressed, len(payload)+1); !errors.Is(err, dztype.ErrDecompression) {
				t.Fatalf("long: error = %v, want ErrDecompression", err)
			}
			if _, err := Decompress(m, compressed, len(payload)-1); !errors.Is(err, dztype.ErrDecompression) {
				t.Fatalf("short: error = %v, want ErrDecompression", err)
			}
		})
	}
}

func TestStoreLengthMismatch(t *testing.T) {
	t.Parallel()

	if _, err := Decompress(dztype.MethodStore, []byte{1, 2, 3}, 4); !errors.Is(err, dztype.ErrDecompression) {
		t.Fatalf("error = %v, want ErrDecompression", err)
	}
}

func TestDZRangeUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := Compress(dztype.MethodDZRange, []byte{1}); !errors.Is(err, dztype.ErrCompression) {
		t.Fatalf("Compress error = %v, want ErrCompression", err)
	}
	if _, err := Decompress(dztype.MethodDZRange, []byte{1}, 1); !errors.Is(err, dztype.ErrDecompression) {
		t.Fatalf("Decompress error = %v, want ErrDecompression", err)
	}
}

func TestEmptyInput(t *testing.T) {
	t.Parallel()

	for _, m := range []dztype.Method{dztype.MethodZlib, dztype.MethodZstd, dztype.MethodLzma, dztype.MethodBzip2} {
		m := m
		t.Run(m.String(), func(t *testing.T) {
			t.Parallel()
			compressed, err := Compress(m, nil)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			out, err := Decompress(m, compressed, 0)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if len(out) != 0 {
				t.Fatalf("expanded to %d bytes, want 0", len(out))
			}
		})
	}
}
