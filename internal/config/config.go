package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the image builder configuration
type Config struct {
	// Image geometry and output location
	Image ImageConfig `json:"image"`

	// Source tree settings
	Source SourceConfig `json:"source"`

	// Bootloader installation settings
	Bootloader BootloaderConfig `json:"bootloader"`

	// Logging settings
	Log LogConfig `json:"log"`
}

// ImageConfig contains output image settings
type ImageConfig struct {
	Path               string `json:"path"`
	SizeMiB            int64  `json:"size_mib"`
	PartitionOffsetMiB int64  `json:"partition_offset_mib"`
	VolumeLabel        string `json:"volume_label"`

	// Toolchain selects how the image is formatted and mounted:
	// "host" (losetup/mkfs/mount), "embedded" (pure Go), or empty for
	// the platform default.
	Toolchain string `json:"toolchain"`
}

// SourceConfig contains build-output tree settings
type SourceConfig struct {
	Dir string `json:"dir"`

	// RequiredArtifacts are relative paths that must exist in the
	// source tree before staging and in the image afterwards.
	RequiredArtifacts []string `json:"required_artifacts"`
}

// BootloaderConfig contains Limine installation settings
type BootloaderConfig struct {
	// LiminePath is the limine executable used to install the BIOS
	// boot stages. Empty disables the install step.
	LiminePath string `json:"limine_path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Image: ImageConfig{
			Path:               "boot.img",
			SizeMiB:            64,
			PartitionOffsetMiB: 1,
			VolumeLabel:        "BOOT",
			Toolchain:          "",
		},
		Source: SourceConfig{
			Dir: "build",
			RequiredArtifacts: []string{
				"boot/limine/limine.cfg",
				"kernel.bin",
			},
		},
		Bootloader: BootloaderConfig{
			LiminePath: "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a JSON file
// If the file doesn't exist, it returns the default configuration
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	config := Default() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
