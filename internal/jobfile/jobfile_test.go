package jobfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/meigma/dzip/internal/dztype"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	const doc = `
base_dir = "assets"
output = "game.dzip"
chunk_size = 65536
volume_size = 1048576
method = "zlib"

[[files]]
path = "textures/ui/panel.png"

[[files]]
path = "raw/blob.bin"
method = "store"
`
	job, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if job.BaseDir != "assets" || job.Output != "game.dzip" {
		t.Fatalf("job = %+v", job)
	}
	if job.ChunkSize != 65536 || job.VolumeSize != 1048576 {
		t.Fatalf("sizes = %d, %d", job.ChunkSize, job.VolumeSize)
	}
	if job.Method != "zlib" {
		t.Fatalf("method = %q", job.Method)
	}
	if len(job.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(job.Files))
	}
	if job.Files[1].Method != "store" {
		t.Fatalf("file override = %q, want store", job.Files[1].Method)
	}
}

func TestDecodeMinimal(t *testing.T) {
	t.Parallel()

	job, err := Decode(strings.NewReader(`output = "out.dzip"`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if job.Output != "out.dzip" || job.BaseDir != "" || len(job.Files) != 0 {
		t.Fatalf("job = %+v", job)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader(`output = "out.dzip"` + "\n" + `compresion = "zlib"`))
	if err == nil || !strings.Contains(err.Error(), "compresion") {
		t.Fatalf("Decode error = %v, want unknown key complaint", err)
	}
}

func TestDecodeBadSyntax(t *testing.T) {
	t.Parallel()

	if _, err := Decode(strings.NewReader(`output = `)); err == nil {
		t.Fatal("Decode accepted malformed TOML")
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want dztype.Method
	}{
		{"", dztype.MethodStore},
		{"store", dztype.MethodStore},
		{"copy", dztype.MethodStore},
		{"zero", dztype.MethodZero},
		{"zlib", dztype.MethodZlib},
		{"bzip2", dztype.MethodBzip2},
		{"lzma", dztype.MethodLzma},
		{"zstd", dztype.MethodZstd},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.name)
		if err != nil {
			t.Fatalf("ParseMethod(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("ParseMethod(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if _, err := ParseMethod("deflate"); !errors.Is(err, dztype.ErrUnsupportedMethod) {
		t.Fatalf("ParseMethod(deflate) error = %v, want ErrUnsupportedMethod", err)
	}
}
