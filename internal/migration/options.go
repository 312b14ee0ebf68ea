package migration

import (
	"medialib/internal/config"
	"medialib/internal/library"
)

// Options tunes scans and repairs.
type Options struct {
	// PageSize bounds rows loaded per query during scans.
	PageSize int
	// UploadSource is written to assets without one.
	UploadSource library.UploadSource
	// MimeDefaults is the fallback MIME type per kind when sniffing does not
	// yield a type of the right family.
	MimeDefaults map[library.Kind]string
	BackupDir    string
	BackupPrefix string
	// MinFreeBytes is the free space the backup directory must have before an export.
	MinFreeBytes uint64
}

// OptionsFromConfig derives Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:     cfg.Migration.ScanPageSize,
		UploadSource: library.UploadSource(cfg.Migration.DefaultUploadSource),
		MimeDefaults: map[library.Kind]string{
			library.KindImage: cfg.Mime.ImageDefault,
			library.KindVideo: cfg.Mime.VideoDefault,
			library.KindAudio: cfg.Mime.AudioDefault,
		},
		BackupDir:    cfg.Paths.BackupDir,
		BackupPrefix: cfg.BackupFilePrefix(),
		MinFreeBytes: uint64(cfg.Migration.MinFreeSpaceMiB) << 20,
	}
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	if o.UploadSource == "" {
		o.UploadSource = library.SourceAIGenerated
	}
	defaults := map[library.Kind]string{
		library.KindImage: "image/png",
		library.KindVideo: "video/mp4",
		library.KindAudio: "audio/mpeg",
	}
	merged := make(map[library.Kind]string, len(defaults))
	for kind, mime := range defaults {
		merged[kind] = mime
		if override := o.MimeDefaults[kind]; override != "" {
			merged[kind] = override
		}
	}
	o.MimeDefaults = merged
	if o.BackupPrefix == "" {
		o.BackupPrefix = "medialib-backup"
	}
	return o
}
