// Package pathutil converts between the archive's raw path convention and
// safe host filesystem paths.
//
// Archives store Windows-style backslash-separated paths as raw bytes. The
// archive engine itself never touches separators; this package is the glue
// the CLI layer uses at the boundary.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errUnsafePath = errors.New("dzip: unsafe archive path")

// FromArchive converts raw archive path bytes to a host-relative path,
// rejecting anything that could escape the extraction root: parent
// references, drive prefixes, and empty results.
func FromArchive(raw []byte) (string, error) {
	parts := strings.FieldsFunc(string(raw), func(r rune) bool {
		return r == '/' || r == '\\'
	})
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "" || part == ".":
			continue
		case part == "..":
			return "", fmt.Errorf("%w: parent reference in %q", errUnsafePath, raw)
		case strings.ContainsRune(part, ':'):
			return "", fmt.Errorf("%w: drive prefix in %q", errUnsafePath, raw)
		}
		clean = append(clean, part)
	}
	if len(clean) == 0 {
		return "", fmt.Errorf("%w: empty path %q", errUnsafePath, raw)
	}
	return filepath.Join(clean...), nil
}

// ToArchive converts a slash- or OS-separated relative path to the archive's
// backslash convention as raw bytes.
func ToArchive(path string) []byte {
	s := filepath.ToSlash(path)
	s = strings.TrimPrefix(s, "./")
	return []byte(strings.ReplaceAll(s, "/", "\\"))
}

// VolumeName validates a continuation volume file name read from an archive
// header: a bare file name, no separators or parent references.
func VolumeName(raw []byte) (string, error) {
	name := string(raw)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, ':') {
		return "", fmt.Errorf("%w: volume name %q", errUnsafePath, raw)
	}
	return name, nil
}
