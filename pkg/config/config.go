package config

import (
	"time"

	"github.com/arthur-debert/modman/pkg/paths"
)

// Config is the merged modman configuration
type Config struct {
	Forum   Forum             `koanf:"forum"`
	Themes  map[string]string `koanf:"themes"`
	Install Install           `koanf:"install"`
	FTP     FTP               `koanf:"ftp"`
	Source  Source            `koanf:"source"`
	Log     Log               `koanf:"log"`
}

// Forum describes the forum being modified
type Forum struct {
	Root    string `koanf:"root"`
	Version string `koanf:"version"`

	SourceDir   string `koanf:"sourcedir"`
	ThemesDir   string `koanf:"themes_dir"`
	ThemeDir    string `koanf:"themedir"`
	LanguageDir string `koanf:"languagedir"`
	ImagesDir   string `koanf:"imagesdir"`
	AvatarDir   string `koanf:"avatardir"`
	SmileysDir  string `koanf:"smileysdir"`
	PackagesDir string `koanf:"packagesdir"`
}

// Install holds install run settings
type Install struct {
	Backup         bool   `koanf:"backup"`
	BackupSuffix   string `koanf:"backup_suffix"`
	StateDir       string `koanf:"state_dir"`
	CacheDir       string `koanf:"cache_dir"`
	EmulateVersion string `koanf:"emulate_version"`
}

// FTP holds the permission fallback credentials
type FTP struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	User     string        `koanf:"user"`
	Password string        `koanf:"password"`
	Root     string        `koanf:"root"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Source holds package download settings
type Source struct {
	S3Profile   string        `koanf:"s3_profile"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`
	MaxSize     int64         `koanf:"max_size"`
}

// Log holds logging settings
type Log struct {
	// File is the log file; empty means the XDG state home, "-" disables it
	File  string `koanf:"file"`
	Color bool   `koanf:"color"`
}

// HostVersion is the version manifests are matched against: the
// emulated version when one is set, the forum version otherwise.
func (c *Config) HostVersion() string {
	if c.Install.EmulateVersion != "" {
		return c.Install.EmulateVersion
	}
	return c.Forum.Version
}

// Layout builds the forum directory layout from the configuration
func (c *Config) Layout() (*paths.Forum, error) {
	return paths.NewForum(c.Forum.Root, map[string]string{
		paths.SourceDir:   c.Forum.SourceDir,
		paths.ThemesDir:   c.Forum.ThemesDir,
		paths.ThemeDir:    c.Forum.ThemeDir,
		paths.LanguageDir: c.Forum.LanguageDir,
		paths.ImagesDir:   c.Forum.ImagesDir,
		paths.AvatarDir:   c.Forum.AvatarDir,
		paths.SmileysDir:  c.Forum.SmileysDir,
		paths.PackagesDir: c.Forum.PackagesDir,
	})
}
