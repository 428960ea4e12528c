package commands

import (
	"fmt"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/format"
	"github.com/deploykit/bootforge/pkg/imagecheck"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Identify a local image's format and run the safety checks",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	inspector := format.NewInspector()
	desc, err := inspector.Inspect(path)
	if err != nil {
		return errors.Wrap(err, "inspection failed")
	}

	fmt.Printf("format:       %s\n", desc.Format)
	fmt.Printf("virtual size: %d\n", desc.VirtualSize)
	fmt.Printf("actual size:  %d\n", desc.ActualSize)

	gate := imagecheck.NewGate(cfg, inspector)
	if _, err := gate.SafetyCheck(path, imagecheck.ImageCacheActor); err != nil {
		fmt.Printf("safety:       FAILED (%v)\n", err)
		return err
	}
	fmt.Printf("safety:       ok\n")
	fmt.Printf("permitted:    %v\n", gate.Permitted(desc.Format))
	return nil
}
