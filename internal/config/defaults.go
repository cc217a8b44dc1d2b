package config

import "github.com/hyperjump/cratedig/internal/cluster"

// DefaultExtensions are the audio file types scanned when none are configured.
var DefaultExtensions = []string{".wav", ".mp3", ".flac", ".aif", ".aiff", ".m4a", ".ogg"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/cratedig/data/db/tracks.db"
	}
	if cfg.Storage.CatalogIndexPath == "" {
		cfg.Storage.CatalogIndexPath = "/usr/local/var/cratedig/data/indices/catalog"
	}
	if cfg.Scan.Extensions == nil {
		cfg.Scan.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Scan.FFmpegPath == "" {
		cfg.Scan.FFmpegPath = "ffmpeg"
	}
	if cfg.Scan.FFprobePath == "" {
		cfg.Scan.FFprobePath = "ffprobe"
	}
	if cfg.Scan.FingerprintSeconds == 0 {
		cfg.Scan.FingerprintSeconds = 30
	}
	if cfg.Scan.TimeoutSeconds == 0 {
		cfg.Scan.TimeoutSeconds = 60
	}
	d := cluster.DefaultConfig()
	if cfg.Duplicates.PrefixLen == 0 {
		cfg.Duplicates.PrefixLen = d.PrefixLen
	}
	if cfg.Duplicates.ExactThreshold == nil {
		v := d.ExactThreshold
		cfg.Duplicates.ExactThreshold = &v
	}
	if cfg.Duplicates.NearThreshold == nil {
		v := d.NearThreshold
		cfg.Duplicates.NearThreshold = &v
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.FilenameBoost == 0 {
		cfg.Search.FilenameBoost = 3.0
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 1
	}
	if cfg.Search.SuggestionEdit == 0 {
		cfg.Search.SuggestionEdit = 2
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
