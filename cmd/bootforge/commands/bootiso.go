package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/bootiso"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/rootfs"
	"github.com/spf13/cobra"
)

var (
	isoBootMode  string
	isoKernel    string
	isoRamdisk   string
	isoDeployISO string
	isoESPImage  string
	isoRootUUID  string
	isoParams    []string
	isoInject    []string
	isoPublisher string
	isoOutput    string
)

var bootisoCmd = &cobra.Command{
	Use:   "boot-iso",
	Short: "Assemble a bootable ISO from a kernel and ramdisk",
	RunE:  runBootISO,
}

func init() {
	rootCmd.AddCommand(bootisoCmd)
	bootisoCmd.Flags().StringVar(&isoBootMode, "boot-mode", "uefi", "Boot mode: bios or uefi")
	bootisoCmd.Flags().StringVar(&isoKernel, "kernel", "", "Kernel image reference")
	bootisoCmd.Flags().StringVar(&isoRamdisk, "ramdisk", "", "Ramdisk image reference")
	bootisoCmd.Flags().StringVar(&isoDeployISO, "deploy-iso", "", "Donor ISO carrying the ESP and grub config")
	bootisoCmd.Flags().StringVar(&isoESPImage, "esp-image", "", "EFI system partition image reference")
	bootisoCmd.Flags().StringVar(&isoRootUUID, "root-uuid", "", "Root filesystem UUID for the kernel command line")
	bootisoCmd.Flags().StringArrayVar(&isoParams, "kernel-param", nil, "Extra kernel parameter (repeatable)")
	bootisoCmd.Flags().StringArrayVar(&isoInject, "inject", nil, "Extra file as src:dest, copied into the ISO tree (repeatable)")
	bootisoCmd.Flags().StringVar(&isoPublisher, "publisher-id", "", "ISO publisher identifier")
	bootisoCmd.Flags().StringVar(&isoOutput, "output", "boot.iso", "Output ISO path")
	bootisoCmd.MarkFlagRequired("kernel")
	bootisoCmd.MarkFlagRequired("ramdisk")
}

func runBootISO(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}
	if err := ensureDirectories(cfg.SQLitePath, "", cfg.WorkDir); err != nil {
		return err
	}

	runner := cmdutil.NewExecRunner()
	fetcher := fetch.NewFetcher(cfg, runner)
	assembler := bootiso.NewAssembler(cfg, runner, fetcher)

	espImage := isoESPImage
	if espImage == "" && isoDeployISO == "" {
		espImage = cfg.ESPImage
	}

	inject := make([]rootfs.Entry, 0, len(isoInject))
	for _, pair := range isoInject {
		src, dest, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("inject %q is not src:dest", pair)
		}
		inject = append(inject, rootfs.Entry{Source: rootfs.PathSource(src), Dest: dest})
	}

	publisher := isoPublisher
	if publisher == "" {
		publisher = cfg.PublisherID
	}

	spec := bootiso.Spec{
		BootMode:     isoBootMode,
		KernelRef:    isoKernel,
		RamdiskRef:   isoRamdisk,
		DeployISORef: isoDeployISO,
		ESPImageRef:  espImage,
		RootUUID:     isoRootUUID,
		KernelParams: isoParams,
		InjectFiles:  inject,
		PublisherID:  publisher,
		OutputPath:   isoOutput,
	}
	return assembler.CreateBootISO(ctx, spec)
}
