package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"os"

	"github.com/deploykit/bootforge/pkg/errors"
)

// windowSize is the read granularity during detection. Files are never
// buffered whole; a well-formed single-format image decides within a few
// windows.
const windowSize = 4096

// detector probes the first needed bytes of a file for one format.
type detector struct {
	format Format
	// needed is how many bytes from the start of the file the detector
	// requires to decide. At EOF a detector decides on whatever is there.
	needed int64
	match  func(buf []byte) bool
	// virtualSize derives the logical image size from the header; nil
	// means the file size is the best available answer.
	virtualSize func(buf []byte, fileSize int64) int64
}

func be32(buf []byte, off int) uint32 { return binary.BigEndian.Uint32(buf[off : off+4]) }
func be64(buf []byte, off int) uint64 { return binary.BigEndian.Uint64(buf[off : off+8]) }
func le16(buf []byte, off int) uint16 { return binary.LittleEndian.Uint16(buf[off : off+2]) }
func le32(buf []byte, off int) uint32 { return binary.LittleEndian.Uint32(buf[off : off+4]) }
func le64(buf []byte, off int) uint64 { return binary.LittleEndian.Uint64(buf[off : off+8]) }

func hasAt(buf []byte, off int, magic []byte) bool {
	return len(buf) >= off+len(magic) && bytes.Equal(buf[off:off+len(magic)], magic)
}

// isoPVDOffsets are the volume descriptor locations probed for the CD001
// magic: the standard primary descriptor plus the two displaced variants
// seen on hybrid media.
var isoPVDOffsets = []int{32769, 34817, 36865}

var detectors = []detector{
	{
		format: FormatQCOW2,
		needed: 104,
		match:  func(buf []byte) bool { return hasAt(buf, 0, []byte("QFI\xfb")) },
		virtualSize: func(buf []byte, fileSize int64) int64 {
			if len(buf) >= 32 {
				return int64(be64(buf, 24))
			}
			return fileSize
		},
	},
	{
		format: FormatQED,
		needed: 56,
		match:  func(buf []byte) bool { return hasAt(buf, 0, []byte("QED\x00")) },
		virtualSize: func(buf []byte, fileSize int64) int64 {
			if len(buf) >= 48 {
				return int64(le64(buf, 40))
			}
			return fileSize
		},
	},
	{
		// Dynamic and differencing VHDs carry a footer copy at offset 0.
		// Fixed VHDs only have the trailing footer and classify as raw,
		// which is the safe direction: they are byte-addressable.
		format: FormatVHD,
		needed: 512,
		match:  func(buf []byte) bool { return hasAt(buf, 0, []byte("conectix")) },
		virtualSize: func(buf []byte, fileSize int64) int64 {
			if len(buf) >= 56 {
				return int64(be64(buf, 48))
			}
			return fileSize
		},
	},
	{
		format: FormatVHDX,
		needed: 8,
		match:  func(buf []byte) bool { return hasAt(buf, 0, []byte("vhdxfile")) },
	},
	{
		format: FormatVMDK,
		needed: vmdkNeeded,
		match: func(buf []byte) bool {
			return hasAt(buf, 0, []byte("KDMV")) || hasAt(buf, 0, []byte("# Disk DescriptorFile"))
		},
		virtualSize: vmdkVirtualSize,
	},
	{
		format: FormatVDI,
		needed: 376,
		match: func(buf []byte) bool {
			return len(buf) >= 68 && le32(buf, 64) == 0xbeda107f
		},
		virtualSize: func(buf []byte, fileSize int64) int64 {
			if len(buf) >= 376 {
				return int64(le64(buf, 368))
			}
			return fileSize
		},
	},
	{
		format: FormatGPT,
		needed: 520,
		match:  func(buf []byte) bool { return hasAt(buf, 512, []byte("EFI PART")) },
	},
	{
		format: FormatISO,
		needed: 36870,
		match: func(buf []byte) bool {
			for _, off := range isoPVDOffsets {
				if hasAt(buf, off, []byte("CD001")) {
					return true
				}
			}
			return false
		},
		virtualSize: func(buf []byte, fileSize int64) int64 {
			// Volume space size (little-endian half of the both-endian
			// field at PVD offset 80) times the logical block size.
			const pvd = 32768
			if len(buf) >= pvd+132 && hasAt(buf, pvd+1, []byte("CD001")) {
				blocks := int64(le32(buf, pvd+80))
				blockSize := int64(le16(buf, pvd+128))
				if blocks > 0 && blockSize > 0 {
					return blocks * blockSize
				}
			}
			return fileSize
		},
	},
}

// maxNeeded bounds how much of the file detection ever buffers.
var maxNeeded = func() int64 {
	var n int64
	for _, d := range detectors {
		if d.needed > n {
			n = d.needed
		}
	}
	return n
}()

// Inspector classifies image files. The zero value is not usable; call
// NewInspector.
type Inspector struct {
	log *slog.Logger
}

func NewInspector() *Inspector {
	return &Inspector{log: slog.Default()}
}

// Inspect streams the head of the file at path through every format
// detector and resolves the outcome:
//
//   - no detector matches: the file is treated as raw
//   - exactly one matches: that format
//   - exactly {iso, gpt} match: iso, because a bootable-as-block ISO can
//     legitimately carry a GPT boot record in front
//   - any other multi-match: *FormatError
//
// Repeated calls on the same bytes return an identical Descriptor.
func (i *Inspector) Inspect(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image for inspection")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat image for inspection")
	}
	fileSize := st.Size()

	buf := make([]byte, 0, maxNeeded)
	eof := false
	for !eof && int64(len(buf)) < maxNeeded {
		window := make([]byte, windowSize)
		n, rerr := io.ReadFull(f, window)
		buf = append(buf, window[:n]...)
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			eof = true
		} else if rerr != nil {
			return nil, errors.Wrap(rerr, "read image for inspection")
		}
		if allDecided(buf, eof) {
			break
		}
	}

	var candidates []Format
	for _, d := range detectors {
		if d.match(buf) {
			candidates = append(candidates, d.format)
		}
	}

	switch len(candidates) {
	case 0:
		return &Descriptor{
			Format:      FormatRaw,
			VirtualSize: fileSize,
			ActualSize:  fileSize,
			header:      buf,
		}, nil
	case 1:
		return i.describe(candidates[0], buf, fileSize), nil
	case 2:
		if hasFormat(candidates, FormatISO) && hasFormat(candidates, FormatGPT) {
			i.log.Debug("format_hybrid_resolved", "path", path, "resolved", "iso")
			return i.describe(FormatISO, buf, fileSize), nil
		}
	}
	return nil, &FormatError{Path: path, Candidates: candidates}
}

func (i *Inspector) describe(fm Format, buf []byte, fileSize int64) *Descriptor {
	d := &Descriptor{
		Format:      fm,
		VirtualSize: fileSize,
		ActualSize:  fileSize,
		header:      buf,
	}
	for _, det := range detectors {
		if det.format == fm && det.virtualSize != nil {
			d.VirtualSize = det.virtualSize(buf, fileSize)
		}
	}
	return d
}

// allDecided reports whether every detector has enough bytes to commit to a
// match or a miss. At EOF everything is decided by definition.
func allDecided(buf []byte, eof bool) bool {
	if eof {
		return true
	}
	for _, d := range detectors {
		if int64(len(buf)) < d.needed {
			return false
		}
	}
	return true
}

func hasFormat(list []Format, f Format) bool {
	for _, c := range list {
		if c == f {
			return true
		}
	}
	return false
}

const vmdkNeeded = 21504 // sparse header plus the embedded text descriptor

// vmdkVirtualSize reads the capacity from the sparse header, or the RW
// extent line of a text descriptor.
func vmdkVirtualSize(buf []byte, fileSize int64) int64 {
	if hasAt(buf, 0, []byte("KDMV")) && len(buf) >= 20 {
		return int64(le64(buf, 12)) * 512
	}
	if sectors := descriptorCapacity(buf); sectors > 0 {
		return sectors * 512
	}
	return fileSize
}
