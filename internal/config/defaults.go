package config

const (
	defaultDataDir             = "~/.local/share/medialib"
	defaultLogDir              = "~/.local/share/medialib/logs"
	defaultBackupDir           = "~/.local/share/medialib/backups"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultScanPageSize        = 500
	defaultUploadSource        = "ai-generated"
	defaultImageMime           = "image/png"
	defaultVideoMime           = "video/mp4"
	defaultAudioMime           = "audio/mpeg"
	defaultDatabaseName        = "medialib.db"
	defaultBusyTimeoutMillis   = 5000
	defaultConfigRelativePath  = "~/.config/medialib/config.toml"
	defaultProjectConfigName   = "medialib.toml"
	defaultLockFileName        = "medialib.lock"
	defaultLogFileName         = "medialib.log"
	defaultBackupFilePrefix    = "medialib-backup"
	defaultMinFreeSpaceMiB     = 64
	defaultRequireBackupRepair = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			BackupDir: defaultBackupDir,
		},
		Database: Database{
			Filename:          defaultDatabaseName,
			BusyTimeoutMillis: defaultBusyTimeoutMillis,
		},
		Migration: Migration{
			ScanPageSize:        defaultScanPageSize,
			DefaultUploadSource: defaultUploadSource,
			BackupBeforeRepair:  defaultRequireBackupRepair,
			MinFreeSpaceMiB:     defaultMinFreeSpaceMiB,
		},
		Mime: Mime{
			ImageDefault: defaultImageMime,
			VideoDefault: defaultVideoMime,
			AudioDefault: defaultAudioMime,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
