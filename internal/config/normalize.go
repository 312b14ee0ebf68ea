package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeMigration()
	c.normalizeMime()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("MEDIALIB_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BackupDir) == "" {
		c.Paths.BackupDir = defaultBackupDir
	}
	if c.Paths.BackupDir, err = expandPath(c.Paths.BackupDir); err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Filename = strings.TrimSpace(c.Database.Filename)
	if c.Database.Filename == "" {
		c.Database.Filename = defaultDatabaseName
	}
	if c.Database.BusyTimeoutMillis <= 0 {
		c.Database.BusyTimeoutMillis = defaultBusyTimeoutMillis
	}
}

func (c *Config) normalizeMigration() {
	if c.Migration.ScanPageSize == 0 {
		c.Migration.ScanPageSize = defaultScanPageSize
	}
	c.Migration.DefaultUploadSource = strings.ToLower(strings.TrimSpace(c.Migration.DefaultUploadSource))
	if c.Migration.DefaultUploadSource == "" {
		c.Migration.DefaultUploadSource = defaultUploadSource
	}
}

func (c *Config) normalizeMime() {
	c.Mime.ImageDefault = strings.ToLower(strings.TrimSpace(c.Mime.ImageDefault))
	if c.Mime.ImageDefault == "" {
		c.Mime.ImageDefault = defaultImageMime
	}
	c.Mime.VideoDefault = strings.ToLower(strings.TrimSpace(c.Mime.VideoDefault))
	if c.Mime.VideoDefault == "" {
		c.Mime.VideoDefault = defaultVideoMime
	}
	c.Mime.AudioDefault = strings.ToLower(strings.TrimSpace(c.Mime.AudioDefault))
	if c.Mime.AudioDefault == "" {
		c.Mime.AudioDefault = defaultAudioMime
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
