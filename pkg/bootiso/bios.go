package bootiso

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/rootfs"
)

// ldlinuxSearchDirs are the places distros install the syslinux runtime
// module required by isolinux.bin since syslinux 5.
var ldlinuxSearchDirs = []string{
	"/usr/lib/syslinux/modules/bios",
	"/usr/share/syslinux",
}

func findLdlinux(configured string) string {
	if configured != "" {
		return configured
	}
	for _, dir := range ldlinuxSearchDirs {
		candidate := filepath.Join(dir, "ldlinux.c32")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// buildBIOS lays out an isolinux tree and produces an El Torito BIOS ISO.
func (a *Assembler) buildBIOS(ctx context.Context, tmp, kernel, ramdisk string, params []string, spec Spec) error {
	isoRoot := filepath.Join(tmp, "isoroot")
	if err := os.MkdirAll(isoRoot, 0o755); err != nil {
		return errors.Wrap(err, "create iso root")
	}

	cfg, err := renderBootConfig(isolinuxTemplateText, a.cfg.IsolinuxTemplate, params)
	if err != nil {
		return err
	}

	entries := []rootfs.Entry{
		{Source: rootfs.PathSource(kernel), Dest: "vmlinuz"},
		{Source: rootfs.PathSource(ramdisk), Dest: "initrd"},
		{Source: rootfs.PathSource(a.cfg.IsolinuxBin), Dest: "isolinux/isolinux.bin"},
		{Source: rootfs.BytesSource(cfg), Dest: "isolinux/isolinux.cfg"},
	}
	if ldlinux := findLdlinux(a.cfg.LdlinuxC32); ldlinux != "" {
		slog.Debug("bootiso_ldlinux", "path", ldlinux)
		entries = append(entries, rootfs.Entry{
			Source: rootfs.PathSource(ldlinux), Dest: "isolinux/ldlinux.c32",
		})
	}
	entries = append(entries, spec.InjectFiles...)

	if err := rootfs.Build(isoRoot, entries); err != nil {
		return err
	}

	args := []string{
		"-r", "-V", label(spec.InjectFiles), "-J", "-l",
		"-publisher", a.publisher(spec),
		"-no-emul-boot", "-boot-load-size", "4", "-boot-info-table",
		"-b", "isolinux/isolinux.bin",
		"-o", spec.OutputPath, isoRoot,
	}
	if out, err := a.runner.Run(ctx, "mkisofs", args...); err != nil {
		slog.Error("mkisofs_failed", "output", string(out), "error", err)
		return &CreationError{Reason: "mkisofs failed building the BIOS image"}
	}
	return nil
}

func (a *Assembler) publisher(spec Spec) string {
	if spec.PublisherID != "" {
		return spec.PublisherID
	}
	return a.cfg.PublisherID
}
