// Package convert normalizes downloaded images to raw. Anything already
// usable on a block device passes through untouched; everything else goes
// through qemu-img with the output re-inspected before it is accepted.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/format"
	"github.com/deploykit/bootforge/pkg/imagecheck"
)

// ConvertError is a terminal conversion failure: the staging files have been
// cleaned up and the image must be re-fetched to retry.
type ConvertError struct {
	Ref    string
	Reason string
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("conversion of %s failed: %s", e.Ref, e.Reason)
}

// Pipeline converts fetched images to raw in a staging area.
type Pipeline struct {
	cfg       *config.Config
	gate      *imagecheck.Gate
	inspector *format.Inspector
	runner    cmdutil.Runner

	// availableMemory is swappable in tests.
	availableMemory func() (int64, error)
}

func NewPipeline(cfg *config.Config, gate *imagecheck.Gate, inspector *format.Inspector, runner cmdutil.Runner) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		gate:            gate,
		inspector:       inspector,
		runner:          runner,
		availableMemory: availableMemoryBytes,
	}
}

// WillConvert reports whether fm requires a qemu-img pass. ISO images are
// kept verbatim; they are consumed by media assembly, not written to disk.
func WillConvert(fm format.Format) bool {
	if imagecheck.RawImageFormats[fm] {
		return false
	}
	return fm != format.FormatISO
}

// WillConvertFile reports whether the image at path would go through the
// converter, without touching it.
func (p *Pipeline) WillConvertFile(path string) (bool, error) {
	desc, err := p.inspector.Inspect(path)
	if err != nil {
		return false, err
	}
	return WillConvert(desc.Format), nil
}

// ConvertedSize reports the on-disk size the raw result will have. Exact mode
// returns the virtual size. Estimate mode scales the current on-disk size by
// the configured growth factor, capped at the virtual size, which avoids
// over-reserving for sparse images.
func (p *Pipeline) ConvertedSize(path string, estimate bool) (int64, error) {
	desc, err := p.inspector.Inspect(path)
	if err != nil {
		return 0, err
	}
	if !estimate {
		return desc.VirtualSize, nil
	}
	est := int64(float64(desc.ActualSize) * p.cfg.RawGrowthFactor)
	if est < desc.VirtualSize {
		return est, nil
	}
	return desc.VirtualSize, nil
}

// ToRaw moves the staged image at pathTmp to path, converting to raw format
// on the way unless the image is already directly usable. On success pathTmp
// no longer exists; on failure both pathTmp and any staging output are gone.
func (p *Pipeline) ToRaw(ctx context.Context, ref, path, pathTmp string) error {
	fm, err := p.identify(ref, pathTmp)
	if err != nil {
		os.Remove(pathTmp)
		return err
	}

	if !WillConvert(fm) {
		slog.Info("convert_skipped", "ref", ref, "format", fm)
		if err := os.Rename(pathTmp, path); err != nil {
			os.Remove(pathTmp)
			slog.Error("convert_move_failed", "ref", ref, "error", err)
			return &ConvertError{Ref: ref, Reason: "image could not be moved into place"}
		}
		return nil
	}

	if err := p.memoryPreflight(ref); err != nil {
		os.Remove(pathTmp)
		return err
	}

	staged := pathTmp + ".converted"
	slog.Info("convert_start", "ref", ref, "source_format", fm, "staged", staged)
	out, err := p.runner.Run(ctx, "qemu-img", "convert", "-O", "raw", "-f", string(fm), pathTmp, staged)
	os.Remove(pathTmp)
	if err != nil {
		os.Remove(staged)
		slog.Error("convert_failed", "ref", ref, "error", err, "output", string(out))
		return &ConvertError{Ref: ref, Reason: "qemu-img convert failed"}
	}

	// Never trust the converter: the output must inspect as a raw image
	// before it is promoted.
	desc, err := p.inspector.Inspect(staged)
	if err != nil {
		os.Remove(staged)
		return &ConvertError{Ref: ref, Reason: "converted image could not be inspected"}
	}
	if !imagecheck.RawImageFormats[desc.Format] {
		os.Remove(staged)
		slog.Error("convert_output_not_raw", "ref", ref, "format", desc.Format)
		return &ConvertError{Ref: ref, Reason: fmt.Sprintf("conversion produced %s, not raw", desc.Format)}
	}

	if err := os.Rename(staged, path); err != nil {
		os.Remove(staged)
		slog.Error("convert_move_failed", "ref", ref, "error", err)
		return &ConvertError{Ref: ref, Reason: "converted image could not be moved into place"}
	}
	slog.Info("convert_complete", "ref", ref, "path", path)
	return nil
}

// identify determines the source format. With deep inspection enabled the
// image must pass the full safety gate; disabling it trusts on-disk bytes
// from an untrusted source and is loudly logged.
func (p *Pipeline) identify(ref, pathTmp string) (format.Format, error) {
	if p.cfg.DisableDeepInspection {
		slog.Warn("deep_image_inspection_disabled", "ref", ref)
		desc, err := p.inspector.Inspect(pathTmp)
		if err != nil {
			return "", &ConvertError{Ref: ref, Reason: "image format could not be identified"}
		}
		return desc.Format, nil
	}

	fm, err := p.gate.SafetyCheck(pathTmp, ref)
	if err != nil {
		return "", err
	}
	if err := p.gate.CheckPermitted(fm, "", ref); err != nil {
		return "", err
	}
	return fm, nil
}

func (p *Pipeline) memoryPreflight(ref string) error {
	required := p.cfg.MinFreeMemoryMiB * 1024 * 1024
	if required <= 0 {
		return nil
	}
	avail, err := p.availableMemory()
	if err != nil {
		slog.Warn("memory_check_unavailable", "ref", ref, "error", err)
		return nil
	}
	if avail < required {
		slog.Error("convert_insufficient_memory", "ref", ref,
			"available_mb", avail/1024/1024, "required_mb", required/1024/1024)
		return &ConvertError{Ref: ref, Reason: "not enough free memory to run the converter"}
	}
	return nil
}
