package commands

import (
	"context"
	"fmt"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/policy"
	"github.com/spf13/cobra"
)

var (
	classifyImageType string
	classifyKernel    string
	classifyRamdisk   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image-ref>",
	Short: "Classify an image reference (whole-disk vs partition, file vs path)",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyImageType, "image-type", "", "Declared image type, if any")
	classifyCmd.Flags().StringVar(&classifyKernel, "kernel", "", "Associated kernel reference")
	classifyCmd.Flags().StringVar(&classifyRamdisk, "ramdisk", "", "Associated ramdisk reference")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	fetcher := fetch.NewFetcher(cfg, cmdutil.NewExecRunner())
	classifier := policy.NewClassifier(fetcher)

	info := policy.InstanceInfo{
		ImageSource: ref,
		ImageType:   classifyImageType,
		Kernel:      classifyKernel,
		Ramdisk:     classifyRamdisk,
	}

	fmt.Printf("whole-disk: %s\n", classifier.IsWholeDisk(ctx, info))
	fmt.Printf("is-path:    %s\n", classifier.IsSourceAPath(ctx, ref))
	return nil
}
