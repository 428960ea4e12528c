// Package rootfs lays out the content of a filesystem image under a staging
// directory before the image itself is built.
package rootfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploykit/bootforge/pkg/errors"
)

// Source is one file payload, either a path on disk or literal bytes.
type Source struct {
	path string
	data []byte
}

// PathSource references an existing file; its bytes are read at build time.
func PathSource(path string) Source { return Source{path: path} }

// BytesSource carries literal content.
func BytesSource(data []byte) Source { return Source{data: data} }

// Entry places a Source at a destination path relative to the filesystem
// root. Dest must be relative; absolute destinations are rejected.
type Entry struct {
	Source Source
	Dest   string
}

// Build populates rootDir with the given entries, creating parent
// directories as needed. Entries apply in order, so a later entry for the
// same destination overwrites an earlier one.
func Build(rootDir string, entries []Entry) error {
	for _, e := range entries {
		dest := filepath.Clean(e.Dest)
		if filepath.IsAbs(dest) || strings.HasPrefix(dest, "..") {
			return fmt.Errorf("destination %q escapes the filesystem root", e.Dest)
		}
		target := filepath.Join(rootDir, dest)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, "create parent directory")
		}
		if err := write(target, e.Source); err != nil {
			return err
		}
	}
	return nil
}

func write(target string, src Source) error {
	out, err := os.Create(target)
	if err != nil {
		return errors.Wrap(err, "create file in root")
	}
	defer out.Close()

	if src.path == "" {
		_, err = out.Write(src.data)
		return errors.Wrap(err, "write file content")
	}

	in, err := os.Open(src.path)
	if err != nil {
		return errors.Wrap(err, "open source file")
	}
	defer in.Close()
	_, err = io.Copy(out, in)
	return errors.Wrap(err, "copy source file")
}
