// Package policy classifies image references: whether a reference names a
// whole-disk or partition image, and whether it points at a file or at a
// directory of files.
package policy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deploykit/bootforge/pkg/fetch"
)

// Answer is a tristate classification result. Unknown means the question
// could not be answered, not that the answer is no.
type Answer int

const (
	Unknown Answer = iota
	No
	Yes
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

// InstanceInfo is the caller-supplied deployment record for one node.
type InstanceInfo struct {
	ImageSource string
	// ImageType, when set, is authoritative: anything but "partition"
	// means whole-disk.
	ImageType string
	Kernel    string
	Ramdisk   string
}

// Classifier answers deployment-policy questions using transport metadata.
type Classifier struct {
	fetcher *fetch.Fetcher
}

func NewClassifier(fetcher *fetch.Fetcher) *Classifier {
	return &Classifier{fetcher: fetcher}
}

// IsWholeDisk reports whether info describes a whole-disk image. An explicit
// image type always wins; otherwise catalog properties and the presence of
// kernel/ramdisk associations decide.
func (c *Classifier) IsWholeDisk(ctx context.Context, info InstanceInfo) Answer {
	if info.ImageType != "" {
		if info.ImageType == "partition" {
			return No
		}
		return Yes
	}

	ref := info.ImageSource
	switch {
	case fetch.IsCatalogRef(ref):
		shown, err := c.fetcher.Show(ctx, ref)
		if err != nil {
			slog.Warn("classify_show_failed", "ref", ref, "error", err)
			return Unknown
		}
		if t, ok := shown.Properties["img_type"]; ok {
			if t == "partition" {
				return No
			}
			return Yes
		}
		// Without an image type the catalog still records partition
		// images by their kernel and ramdisk associations. Either one
		// present means partition image.
		_, hasKernel := shown.Properties["kernel_id"]
		_, hasRamdisk := shown.Properties["ramdisk_id"]
		if !hasKernel && !hasRamdisk {
			return Yes
		}
		return No
	case fetch.IsRegistryRef(ref):
		// Registry artifacts are always complete disk images.
		return Yes
	case c.IsSourceAPath(ctx, ref) == Yes:
		return Unknown
	default:
		if info.Kernel == "" && info.Ramdisk == "" {
			return Yes
		}
		return No
	}
}

// IsSourceAPath reports whether ref points at a directory of artifacts
// rather than a single file. The probe is metadata-only.
func (c *Classifier) IsSourceAPath(ctx context.Context, ref string) Answer {
	head, err := c.fetcher.Head(ctx, ref)
	if err != nil {
		slog.Warn("classify_head_failed", "ref", ref, "error", err)
		return Unknown
	}

	// Precedence matters: servers answer directory URLs with an HTML
	// index page, so content type is checked before anything else.
	if strings.HasPrefix(head.ContentType, "text/html") {
		return Yes
	}
	if head.ContentType != "" && head.HasContentLength {
		return No
	}
	if strings.HasSuffix(head.FinalURL, "/") {
		return Yes
	}
	return No
}
