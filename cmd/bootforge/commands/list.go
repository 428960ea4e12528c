package commands

import (
	"fmt"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/db"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all images and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	images, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(images) == 0 {
		fmt.Println("No images found")
		return nil
	}

	fmt.Printf("%-50s %-12s %-8s %-40s\n", "HREF", "STATUS", "FORMAT", "OUTPUT")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, img := range images {
		fm := img.Format
		if fm == "" {
			fm = "-"
		}
		output := img.OutputPath
		if output == "" {
			output = "-"
		}
		fmt.Printf("%-50s %-12s %-8s %-40s\n", img.Href, img.Status, fm, output)
	}

	return nil
}
