package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/db"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupImage    string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up image artifacts (staged downloads, converted outputs)",
	Long: `Clean up artifacts associated with images:
  --all            Remove artifacts for all images
  --image <href>   Remove artifacts for a specific image
  --orphaned       Remove staging files not tracked in the database`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all artifacts")
	cleanupCmd.Flags().StringVar(&cleanupImage, "image", "", "Clean a specific image by reference")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Clean orphaned staging files")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	switch {
	case cleanupAll:
		return cleanupAllImages(repo, cfg)
	case cleanupImage != "":
		return cleanupSpecificImage(repo, cfg, cleanupImage)
	case cleanupOrphaned:
		return cleanupOrphanedFiles(repo, cfg)
	default:
		return fmt.Errorf("must specify --all, --image, or --orphaned")
	}
}

func cleanupAllImages(repo *db.Repository, cfg *config.Config) error {
	images, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("Cleaning up %d images...\n", len(images))

	for _, img := range images {
		if err := cleanupImageArtifacts(repo, cfg, img); err != nil {
			fmt.Printf("failed to clean %s: %v\n", img.Href, err)
		} else {
			fmt.Printf("cleaned: %s\n", img.Href)
		}
	}

	return nil
}

func cleanupSpecificImage(repo *db.Repository, cfg *config.Config, href string) error {
	img, err := repo.GetByHref(href)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if img == nil {
		return fmt.Errorf("image not found: %s", href)
	}

	if err := cleanupImageArtifacts(repo, cfg, img); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("cleaned: %s\n", href)
	return nil
}

func cleanupImageArtifacts(repo *db.Repository, cfg *config.Config, img *db.Image) error {
	if img.OutputPath != "" {
		if err := os.Remove(img.OutputPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to remove output")
		}
		img.OutputPath = ""
	}

	img.Status = db.StatusCleaned
	img.Format = ""
	if err := repo.Update(img); err != nil {
		return errors.Wrap(err, "failed to update database")
	}

	return nil
}

func cleanupOrphanedFiles(repo *db.Repository, cfg *config.Config) error {
	fmt.Println("Scanning for orphaned staging files...")

	orphanCount := 0

	// Staging files are only meaningful to a running workflow; anything
	// left behind is an orphan.
	stageDir := filepath.Join(cfg.WorkDir, "staging")
	if entries, err := os.ReadDir(stageDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			orphanPath := filepath.Join(stageDir, entry.Name())
			if err := os.Remove(orphanPath); err != nil {
				fmt.Printf("failed to remove %s: %v\n", entry.Name(), err)
			} else {
				orphanCount++
			}
		}
	}

	// Converted outputs under the work dir must match a database row.
	imagesDir := filepath.Join(cfg.WorkDir, "images")
	tracked := map[string]bool{}
	if images, err := repo.List(); err == nil {
		for _, img := range images {
			if img.OutputPath != "" {
				tracked[img.OutputPath] = true
			}
		}
	}
	if entries, err := os.ReadDir(imagesDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			orphanPath := filepath.Join(imagesDir, entry.Name())
			if tracked[orphanPath] {
				continue
			}
			if err := os.Remove(orphanPath); err != nil {
				fmt.Printf("failed to remove %s: %v\n", entry.Name(), err)
			} else {
				orphanCount++
			}
		}
	}

	fmt.Printf("Removed %d orphaned files\n", orphanCount)
	return nil
}
