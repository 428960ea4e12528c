// Package format implements on-disk image format detection and per-format
// safety inspection. Detection streams the file head in fixed windows and
// never buffers more than the largest probe offset any detector needs.
package format

import (
	"fmt"
	"strings"
)

// Format identifies a detected on-disk image format.
type Format string

const (
	FormatRaw   Format = "raw"
	FormatQCOW2 Format = "qcow2"
	FormatQED   Format = "qed"
	FormatVHD   Format = "vhd"
	FormatVHDX  Format = "vhdx"
	FormatVMDK  Format = "vmdk"
	FormatVDI   Format = "vdi"
	FormatISO   Format = "iso"
	FormatGPT   Format = "gpt"
)

// Descriptor describes the result of one inspection call. It is immutable
// once returned.
type Descriptor struct {
	// Format is the resolved format name.
	Format Format
	// VirtualSize is the logical addressable size of the image.
	VirtualSize int64
	// ActualSize is the number of bytes the file occupies on storage.
	ActualSize int64

	// header holds the inspected prefix so SafetyCheck can parse
	// format-specific metadata without re-reading the file.
	header []byte
}

func (d *Descriptor) String() string {
	return string(d.Format)
}

// FormatError reports bytes that could not be classified, or a genuinely
// ambiguous multi-format match.
type FormatError struct {
	Path       string
	Candidates []Format
	Reason     string
}

func (e *FormatError) Error() string {
	if len(e.Candidates) > 0 {
		names := make([]string, len(e.Candidates))
		for i, c := range e.Candidates {
			names[i] = string(c)
		}
		return fmt.Sprintf("format detection of %s is ambiguous: candidates %s",
			e.Path, strings.Join(names, ", "))
	}
	return fmt.Sprintf("format detection of %s failed: %s", e.Path, e.Reason)
}

// SafetyCheckError reports a known-unsafe feature found in an otherwise
// well-formed image.
type SafetyCheckError struct {
	Format Format
	Reason string
}

func (e *SafetyCheckError) Error() string {
	return fmt.Sprintf("%s image failed safety check: %s", e.Format, e.Reason)
}
