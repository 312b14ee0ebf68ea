package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var validUploadSources = map[string]struct{}{
	"ai-generated":  {},
	"manual-upload": {},
	"imported":      {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateMigration(); err != nil {
		return err
	}
	if err := c.validateMime(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if filepath.Base(c.Database.Filename) != c.Database.Filename {
		return fmt.Errorf("database.filename must be a bare file name, got %q", c.Database.Filename)
	}
	return nil
}

func (c *Config) validateMigration() error {
	if c.Migration.ScanPageSize <= 0 {
		return errors.New("migration.scan_page_size must be positive")
	}
	if _, ok := validUploadSources[c.Migration.DefaultUploadSource]; !ok {
		return fmt.Errorf("migration.default_upload_source: unsupported value %q (want ai-generated, manual-upload, or imported)", c.Migration.DefaultUploadSource)
	}
	if c.Migration.MinFreeSpaceMiB < 0 {
		return errors.New("migration.min_free_space_mib must not be negative")
	}
	return nil
}

func (c *Config) validateMime() error {
	checks := []struct {
		key    string
		value  string
		prefix string
	}{
		{"mime.image_default", c.Mime.ImageDefault, "image/"},
		{"mime.video_default", c.Mime.VideoDefault, "video/"},
		{"mime.audio_default", c.Mime.AudioDefault, "audio/"},
	}
	for _, check := range checks {
		if !strings.HasPrefix(check.value, check.prefix) {
			return fmt.Errorf("%s must start with %q, got %q", check.key, check.prefix, check.value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
