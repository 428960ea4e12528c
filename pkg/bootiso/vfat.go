package bootiso

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deploykit/bootforge/pkg/errors"
)

// vfatLabel is probed by ramdisk-side tooling to locate the parameters
// floppy, so it never changes.
const vfatLabel = "ir-vfd-dev"

// DefaultParametersFile is the name ramdisk tooling expects the key=value
// payload under.
const DefaultParametersFile = "parameters.txt"

// CreateVFATImage builds a FAT filesystem image at outputPath containing the
// given files plus parameters rendered as key=value lines into
// parametersFile. sizeKiB is the total image size.
func (a *Assembler) CreateVFATImage(ctx context.Context, outputPath string, files []string, parameters map[string]string, parametersFile string, sizeKiB int64) error {
	if sizeKiB <= 0 {
		return &CreationError{Reason: "vfat image size must be positive"}
	}

	if out, err := a.runner.Run(ctx, "dd",
		"if=/dev/zero", "of="+outputPath, "count=1",
		fmt.Sprintf("bs=%dKiB", sizeKiB)); err != nil {
		slog.Error("vfat_dd_failed", "output", string(out), "error", err)
		return &CreationError{Reason: "allocating the vfat image failed"}
	}
	if out, err := a.runner.Run(ctx, "mkfs", "-t", "vfat", "-n", vfatLabel, outputPath); err != nil {
		slog.Error("vfat_mkfs_failed", "output", string(out), "error", err)
		return &CreationError{Reason: "formatting the vfat image failed"}
	}

	return a.withTempDir(func(tmp string) error {
		copyIn := append([]string{}, files...)
		if len(parameters) > 0 {
			if parametersFile == "" {
				parametersFile = DefaultParametersFile
			}
			paramFile := filepath.Join(tmp, parametersFile)
			if err := writeParameters(paramFile, parameters); err != nil {
				return err
			}
			copyIn = append(copyIn, paramFile)
		}
		if len(copyIn) == 0 {
			return nil
		}

		args := append([]string{"-s"}, copyIn...)
		args = append(args, "-i", outputPath, "::")
		if out, err := a.runner.Run(ctx, "mcopy", args...); err != nil {
			slog.Error("vfat_mcopy_failed", "output", string(out), "error", err)
			return &CreationError{Reason: "copying files into the vfat image failed"}
		}
		return nil
	})
}

func writeParameters(path string, parameters map[string]string) error {
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, parameters[k])
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.Wrap(err, "write parameters file")
	}
	return nil
}
