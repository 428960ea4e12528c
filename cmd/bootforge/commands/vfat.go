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
	"github.com/spf13/cobra"
)

var (
	vfatFiles     []string
	vfatParams    []string
	vfatParamFile string
	vfatSizeKiB   int64
	vfatOutput    string
)

var vfatCmd = &cobra.Command{
	Use:   "vfat",
	Short: "Build a FAT parameters image for ramdisk-side tooling",
	RunE:  runVFAT,
}

func init() {
	rootCmd.AddCommand(vfatCmd)
	vfatCmd.Flags().StringArrayVar(&vfatFiles, "file", nil, "File to copy into the image (repeatable)")
	vfatCmd.Flags().StringArrayVar(&vfatParams, "parameter", nil, "key=value pair for parameters.txt (repeatable)")
	vfatCmd.Flags().StringVar(&vfatParamFile, "parameters-file", bootiso.DefaultParametersFile, "Name of the parameters file inside the image")
	vfatCmd.Flags().Int64Var(&vfatSizeKiB, "size-kib", 100, "Image size in KiB")
	vfatCmd.Flags().StringVar(&vfatOutput, "output", "params.img", "Output image path")
}

func runVFAT(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := ensureDirectories(cfg.SQLitePath, "", cfg.WorkDir); err != nil {
		return err
	}

	parameters := make(map[string]string, len(vfatParams))
	for _, p := range vfatParams {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("parameter %q is not key=value", p)
		}
		parameters[k] = v
	}

	runner := cmdutil.NewExecRunner()
	assembler := bootiso.NewAssembler(cfg, runner, fetch.NewFetcher(cfg, runner))
	return assembler.CreateVFATImage(ctx, vfatOutput, vfatFiles, parameters, vfatParamFile, vfatSizeKiB)
}
