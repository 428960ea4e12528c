package bootiso

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/rootfs"
	"github.com/kdomanski/iso9660"
)

// buildUEFI assembles a UEFI-bootable ISO. The EFI system partition image
// comes either from a donor deploy ISO or directly from a fetched ESP image.
func (a *Assembler) buildUEFI(ctx context.Context, tmp, kernel, ramdisk string, params []string, spec Spec) error {
	isoRoot := filepath.Join(tmp, "isoroot")
	if err := os.MkdirAll(isoRoot, 0o755); err != nil {
		return errors.Wrap(err, "create iso root")
	}

	espPath := filepath.Join(tmp, "efiboot.img")
	espRel := espLocation
	grubRel := strings.TrimPrefix(a.cfg.GrubConfigPath, "/")

	if spec.DeployISORef != "" {
		donor := filepath.Join(tmp, "deploy.iso")
		if err := a.fetcher.Fetch(ctx, spec.DeployISORef, donor, fetch.Options{}); err != nil {
			return errors.Wrap(err, "fetch deploy ISO")
		}
		found, err := extractNamed(donor, map[string]string{
			"efiboot.img": espPath,
			"grub.cfg":    filepath.Join(tmp, "grub.cfg"),
		})
		if err != nil {
			return err
		}
		// The donor dictates where boot firmware expects these files.
		espRel = found["efiboot.img"]
		grubRel = found["grub.cfg"]
	} else {
		if err := a.fetcher.Fetch(ctx, spec.ESPImageRef, espPath, fetch.Options{}); err != nil {
			return errors.Wrap(err, "fetch ESP image")
		}
	}

	grubCfg, err := renderBootConfig(grubTemplateText, a.cfg.GrubTemplate, params)
	if err != nil {
		return err
	}

	entries := []rootfs.Entry{
		{Source: rootfs.PathSource(kernel), Dest: "vmlinuz"},
		{Source: rootfs.PathSource(ramdisk), Dest: "initrd"},
		{Source: rootfs.PathSource(espPath), Dest: espRel},
		{Source: rootfs.BytesSource(grubCfg), Dest: grubRel},
	}
	entries = append(entries, spec.InjectFiles...)

	if err := rootfs.Build(isoRoot, entries); err != nil {
		return err
	}

	args := []string{"-r", "-V", label(spec.InjectFiles), "-l"}
	if pub := a.publisher(spec); pub != "" {
		args = append(args, "-publisher", pub)
	}
	args = append(args, "-e", espRel, "-no-emul-boot", "-o", spec.OutputPath, isoRoot)
	if out, err := a.runner.Run(ctx, "mkisofs", args...); err != nil {
		slog.Error("mkisofs_failed", "output", string(out), "error", err)
		return &CreationError{Reason: "mkisofs failed building the UEFI image"}
	}
	return nil
}

// extractNamed copies files out of an ISO image by base name. wanted maps a
// lowercase base name to the local destination path. It returns the relative
// in-ISO path of each extracted file and fails if any name is missing.
func extractNamed(isoPath string, wanted map[string]string) (map[string]string, error) {
	f, err := os.Open(isoPath)
	if err != nil {
		return nil, errors.Wrap(err, "open donor ISO")
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse donor ISO")
	}
	root, err := img.RootDir()
	if err != nil {
		return nil, errors.Wrap(err, "read donor ISO root")
	}

	found := make(map[string]string, len(wanted))
	if err := walkISO(root, "", func(file *iso9660.File, rel string) error {
		dest, ok := wanted[strings.ToLower(file.Name())]
		if !ok {
			return nil
		}
		out, err := os.Create(dest)
		if err != nil {
			return errors.Wrap(err, "create extracted file")
		}
		defer out.Close()
		if _, err := io.Copy(out, file.Reader()); err != nil {
			return errors.Wrap(err, "extract file from donor ISO")
		}
		found[strings.ToLower(file.Name())] = rel
		return nil
	}); err != nil {
		return nil, err
	}

	for name := range wanted {
		if _, ok := found[name]; !ok {
			return nil, &CreationError{Reason: fmt.Sprintf("donor ISO is missing %s", name)}
		}
	}
	return found, nil
}

func walkISO(dir *iso9660.File, prefix string, fn func(*iso9660.File, string) error) error {
	children, err := dir.GetChildren()
	if err != nil {
		return errors.Wrap(err, "list donor ISO directory")
	}
	for _, child := range children {
		rel := path.Join(prefix, child.Name())
		if child.IsDir() {
			if err := walkISO(child, rel, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(child, rel); err != nil {
			return err
		}
	}
	return nil
}
