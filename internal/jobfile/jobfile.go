// Package jobfile loads TOML pack job specifications for the CLI layer.
//
// The archive engine consumes the decoded job as plain data; all file
// syntax, defaulting, and method-name resolution happens here.
package jobfile

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/meigma/dzip/internal/dztype"
)

// Job is a decoded pack job specification.
type Job struct {
	// BaseDir is the directory source paths are relative to. Defaults to
	// the job file's directory when empty.
	BaseDir string `toml:"base_dir"`
	// Output is the base volume path to create.
	Output string `toml:"output"`
	// ChunkSize is the compression unit size in bytes. Zero selects the
	// engine default.
	ChunkSize uint32 `toml:"chunk_size"`
	// VolumeSize is the per-volume split threshold in bytes. Zero writes
	// a single volume.
	VolumeSize uint64 `toml:"volume_size"`
	// Method is the default compression method name for all files.
	Method string `toml:"method"`
	// Files lists sources to pack. Empty means walk BaseDir.
	Files []File `toml:"files"`
}

// File is one source in a pack job.
type File struct {
	// Path is the source path relative to BaseDir, also used as the
	// archive path after separator conversion.
	Path string `toml:"path"`
	// Method overrides the job default for this file when non-empty.
	Method string `toml:"method"`
}

// Load reads and decodes a job file.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a TOML job specification.
func Decode(r io.Reader) (*Job, error) {
	var job Job
	md, err := toml.NewDecoder(r).Decode(&job)
	if err != nil {
		return nil, fmt.Errorf("dzip: decode job file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("dzip: unknown job file key %q", undecoded[0].String())
	}
	return &job, nil
}

// ParseMethod resolves a method name used in job files. The empty string
// selects store.
func ParseMethod(name string) (dztype.Method, error) {
	switch name {
	case "", "store", "copy":
		return dztype.MethodStore, nil
	case "zero":
		return dztype.MethodZero, nil
	case "zlib":
		return dztype.MethodZlib, nil
	case "bzip2":
		return dztype.MethodBzip2, nil
	case "lzma":
		return dztype.MethodLzma, nil
	case "zstd":
		return dztype.MethodZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", dztype.ErrUnsupportedMethod, name)
	}
}
