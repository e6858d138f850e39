package localcache

import (
	derror "github.com/distflow/localizer/pkg/errors"
)

const (
	// DirectoriesPerLevel is the fan-out of the hierarchical cache.
	// Sub-directories are named by base-36 digits, so every directory
	// holds at most 36 child directories.
	DirectoriesPerLevel = 36

	defaultMaxFilesPerDirectory = 8192

	// minMaxFilesPerDirectory leaves room for a full level of
	// sub-directories plus at least one file.
	minMaxFilesPerDirectory = DirectoriesPerLevel + 1
)

// Config bounds the number of entries a single cache directory may
// acquire.
type Config struct {
	MaxFilesPerDirectory int `toml:"max-files-per-directory" json:"max-files-per-directory"`
}

// NewConfig returns a Config with default values.
func NewConfig() Config {
	return Config{MaxFilesPerDirectory: defaultMaxFilesPerDirectory}
}

// Adjust fills in defaults and validates the config.
func (c *Config) Adjust() error {
	if c.MaxFilesPerDirectory == 0 {
		c.MaxFilesPerDirectory = defaultMaxFilesPerDirectory
	}
	if c.MaxFilesPerDirectory < minMaxFilesPerDirectory {
		return derror.ErrInvalidCacheCapacity.GenWithStackByArgs(
			c.MaxFilesPerDirectory, minMaxFilesPerDirectory)
	}
	return nil
}
