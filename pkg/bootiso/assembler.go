// Package bootiso assembles bootable ISO 9660 and FAT images from a kernel,
// a ramdisk and boot loader scaffolding.
package bootiso

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/rootfs"
	"github.com/google/uuid"
)

const (
	// BootModeBIOS selects the isolinux boot path.
	BootModeBIOS = "bios"
	// BootModeUEFI selects the GRUB/ESP boot path.
	BootModeUEFI = "uefi"

	defaultLabel   = "VMEDIA_BOOT_ISO"
	configDriveLab = "config-2"

	// espLocation is where the EFI system partition image lives inside
	// both donor and produced ISOs.
	espLocation = "boot/grub/efiboot.img"
)

// CreationError reports an unbuildable request, detected before any external
// tool is spawned where possible.
type CreationError struct {
	Reason string
}

func (e *CreationError) Error() string {
	return "boot media creation failed: " + e.Reason
}

// Spec describes one boot image to assemble.
type Spec struct {
	BootMode     string
	KernelRef    string
	RamdiskRef   string
	DeployISORef string
	ESPImageRef  string
	RootUUID     string
	KernelParams []string
	// InjectFiles are placed into the image tree verbatim after the boot
	// scaffolding, so they may overwrite generated files.
	InjectFiles []rootfs.Entry
	PublisherID string
	OutputPath  string
}

// Assembler builds boot media using external image tooling.
type Assembler struct {
	cfg     *config.Config
	runner  cmdutil.Runner
	fetcher *fetch.Fetcher
}

func NewAssembler(cfg *config.Config, runner cmdutil.Runner, fetcher *fetch.Fetcher) *Assembler {
	return &Assembler{cfg: cfg, runner: runner, fetcher: fetcher}
}

// CreateBootISO fetches the named assets and assembles a bootable ISO at
// spec.OutputPath.
func (a *Assembler) CreateBootISO(ctx context.Context, spec Spec) error {
	mode := strings.ToLower(spec.BootMode)
	if mode == "" {
		mode = BootModeUEFI
	}
	if mode != BootModeBIOS && mode != BootModeUEFI {
		return &CreationError{Reason: fmt.Sprintf("unknown boot mode %q", spec.BootMode)}
	}
	if mode == BootModeUEFI {
		if (spec.DeployISORef == "") == (spec.ESPImageRef == "") {
			return &CreationError{Reason: "UEFI media needs exactly one of a deploy ISO or an ESP image"}
		}
	}

	return a.withTempDir(func(tmp string) error {
		kernel := filepath.Join(tmp, "kernel")
		ramdisk := filepath.Join(tmp, "ramdisk")
		if err := a.fetcher.Fetch(ctx, spec.KernelRef, kernel, fetch.Options{}); err != nil {
			return errors.Wrap(err, "fetch kernel")
		}
		if err := a.fetcher.Fetch(ctx, spec.RamdiskRef, ramdisk, fetch.Options{}); err != nil {
			return errors.Wrap(err, "fetch ramdisk")
		}

		var params []string
		if spec.RootUUID != "" {
			params = append(params, "root=UUID="+spec.RootUUID)
		}
		params = append(params, spec.KernelParams...)

		slog.Info("bootiso_assemble", "mode", mode, "output", spec.OutputPath)
		if mode == BootModeBIOS {
			return a.buildBIOS(ctx, tmp, kernel, ramdisk, params, spec)
		}
		return a.buildUEFI(ctx, tmp, kernel, ramdisk, params, spec)
	})
}

// withTempDir runs fn in a uniquely named scratch directory under the work
// dir and removes it afterwards.
func (a *Assembler) withTempDir(fn func(dir string) error) error {
	dir := filepath.Join(a.cfg.WorkDir, "bootiso-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create scratch directory")
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

// label returns the volume label. Config-drive content is recognized by its
// "openstack/" tree and gets the label consumers probe for.
func label(entries []rootfs.Entry) string {
	for _, e := range entries {
		if strings.HasPrefix(e.Dest, "openstack/") {
			return configDriveLab
		}
	}
	return defaultLabel
}
