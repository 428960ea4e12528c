package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "bootforge",
	Short: "Disk image normalization and boot media assembly",
	Long:  `Downloads disk images, inspects and safety-checks their format, converts them to raw, and assembles bootable ISO and vfat media.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/images.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for catalog image references")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("work-dir", "/tmp/bootforge", "Staging directory")
	rootCmd.PersistentFlags().StringSlice("permitted-formats", []string{"raw", "qcow2", "iso"}, "Image formats the safety gate accepts")
	rootCmd.PersistentFlags().Bool("disable-deep-inspection", false, "Trust image formats without safety inspection")
	rootCmd.PersistentFlags().Bool("disable-checksum", false, "Skip checksum verification of downloads")
	rootCmd.PersistentFlags().Bool("disable-zstd", false, "Skip transparent zstd decompression")
	rootCmd.PersistentFlags().Int64("min-free-memory-mib", 1024, "Free memory required before running qemu-img")
	rootCmd.PersistentFlags().Float64("raw-growth-factor", 2.0, "Estimated growth of converted raw images")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("permitted-formats", rootCmd.PersistentFlags().Lookup("permitted-formats"))
	viper.BindPFlag("disable-deep-inspection", rootCmd.PersistentFlags().Lookup("disable-deep-inspection"))
	viper.BindPFlag("disable-checksum", rootCmd.PersistentFlags().Lookup("disable-checksum"))
	viper.BindPFlag("disable-zstd", rootCmd.PersistentFlags().Lookup("disable-zstd"))
	viper.BindPFlag("min-free-memory-mib", rootCmd.PersistentFlags().Lookup("min-free-memory-mib"))
	viper.BindPFlag("raw-growth-factor", rootCmd.PersistentFlags().Lookup("raw-growth-factor"))
}
