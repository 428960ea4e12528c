package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once at process
// start and passed by reference into every component constructor; nothing
// reads viper after Load returns.
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 configuration (catalog-style image references)
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Working directory for staging artifacts
	WorkDir string `mapstructure:"work-dir"`

	// Image security policy
	PermittedFormats      []string `mapstructure:"permitted-formats"`
	DisableDeepInspection bool     `mapstructure:"disable-deep-inspection"`
	DisableChecksum       bool     `mapstructure:"disable-checksum"`
	DisableZstd           bool     `mapstructure:"disable-zstd"`

	// Conversion tuning
	MinFreeMemoryMiB int64   `mapstructure:"min-free-memory-mib"`
	RawGrowthFactor  float64 `mapstructure:"raw-growth-factor"`

	// Boot media assembly
	IsolinuxBin      string `mapstructure:"isolinux-bin"`
	LdlinuxC32       string `mapstructure:"ldlinux-c32"`
	IsolinuxTemplate string `mapstructure:"isolinux-template"`
	GrubTemplate     string `mapstructure:"grub-template"`
	GrubConfigPath   string `mapstructure:"grub-config-path"`
	ESPImage         string `mapstructure:"esp-image"`
	PublisherID      string `mapstructure:"publisher-id"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/images.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("work-dir", "/tmp/bootforge")
	viper.SetDefault("permitted-formats", []string{"raw", "qcow2", "iso"})
	viper.SetDefault("disable-deep-inspection", false)
	viper.SetDefault("disable-checksum", false)
	viper.SetDefault("disable-zstd", false)
	viper.SetDefault("min-free-memory-mib", 1024)
	viper.SetDefault("raw-growth-factor", 2.0)
	viper.SetDefault("isolinux-bin", "/usr/lib/syslinux/isolinux.bin")
	viper.SetDefault("ldlinux-c32", "")
	viper.SetDefault("isolinux-template", "")
	viper.SetDefault("grub-template", "")
	viper.SetDefault("grub-config-path", "/boot/grub/grub.cfg")
	viper.SetDefault("esp-image", "")
	viper.SetDefault("publisher-id", "")
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be BOOTFORGE_WORK_DIR, etc.)
	viper.SetEnvPrefix("BOOTFORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.bootforge")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if len(c.PermittedFormats) == 0 {
		return fmt.Errorf("permitted-formats cannot be empty")
	}
	if c.MinFreeMemoryMiB < 0 {
		return fmt.Errorf("min-free-memory-mib must be non-negative")
	}
	if c.RawGrowthFactor < 1.0 {
		return fmt.Errorf("raw-growth-factor must be at least 1.0")
	}
	if c.GrubConfigPath == "" {
		return fmt.Errorf("grub-config-path cannot be empty")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
