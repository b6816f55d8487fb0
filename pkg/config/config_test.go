// pkg/config/config_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: koanf, filesystem
// PURPOSE: Test configuration layering from defaults, files, environment and flags

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arthur-debert/modman/pkg/config"
	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv(paths.EnvForumRoot, "")
	t.Setenv(paths.EnvStateDir, filepath.Join(root, "state"))
	t.Setenv(paths.EnvCacheDir, filepath.Join(root, "cache"))
	return root
}

func TestLoad_Defaults(t *testing.T) {
	root := isolate(t)

	cfg, err := config.Load(config.LoadOptions{ForumRoot: root})
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Forum.Root)
	assert.Equal(t, "2.0", cfg.Forum.Version)
	assert.Equal(t, "2.0", cfg.HostVersion())
	assert.False(t, cfg.Install.Backup)
	assert.Equal(t, "~", cfg.Install.BackupSuffix)
	assert.Equal(t, filepath.Join(root, "state"), cfg.Install.StateDir)
	assert.Equal(t, filepath.Join(root, "cache"), cfg.Install.CacheDir)
	assert.False(t, cfg.FTP.Enabled)
	assert.Equal(t, 21, cfg.FTP.Port)
	assert.Equal(t, 5*time.Second, cfg.FTP.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Source.HTTPTimeout)
	assert.Equal(t, int64(64<<20), cfg.Source.MaxSize)
	assert.NotNil(t, cfg.Themes)
	assert.Empty(t, cfg.Log.File)
	assert.True(t, cfg.Log.Color)
	assert.Contains(t, config.DefaultContent(), "[forum]")
}

func TestLoad_Layers(t *testing.T) {
	root := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "modman.toml"), []byte(`
[forum]
version = "2.0.19"
sourcedir = "src"

[themes]
dark = "Themes/dark"

[ftp]
host = "ftp.example.com"
timeout = "10s"
`), 0644))

	explicit := filepath.Join(root, "override.toml")
	require.NoError(t, os.WriteFile(explicit, []byte(`
[ftp]
user = "forum"
`), 0644))

	t.Setenv("MODMAN_FTP__PORT", "2121")
	t.Setenv("MODMAN_INSTALL__BACKUP_SUFFIX", ".bak")
	t.Setenv("MODMAN_LOG__FILE", "-")
	t.Setenv("MODMAN_LOG__COLOR", "false")

	cfg, err := config.Load(config.LoadOptions{
		ForumRoot: root,
		File:      explicit,
		Overrides: map[string]interface{}{
			"install.emulate_version": "2.0.15",
			"ftp.host":                "flag.example.com",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "2.0.19", cfg.Forum.Version)
	assert.Equal(t, "2.0.15", cfg.HostVersion())
	assert.Equal(t, filepath.Join(root, "Themes/dark"), cfg.Themes["dark"])
	assert.Equal(t, "flag.example.com", cfg.FTP.Host)
	assert.Equal(t, "forum", cfg.FTP.User)
	assert.Equal(t, 2121, cfg.FTP.Port)
	assert.Equal(t, 10*time.Second, cfg.FTP.Timeout)
	assert.Equal(t, ".bak", cfg.Install.BackupSuffix)
	assert.Equal(t, "-", cfg.Log.File)
	assert.False(t, cfg.Log.Color)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src"), layout.Dir(paths.SourceDir))
	assert.Equal(t, filepath.Join(root, "Themes", "default"), layout.Dir(paths.ThemeDir))
}

func TestLoad_RootFromOverride(t *testing.T) {
	root := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".modman.toml"), []byte("[forum]\nversion = \"2.1\"\n"), 0644))

	cfg, err := config.Load(config.LoadOptions{Overrides: map[string]interface{}{"forum.root": root}})
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Forum.Root)
	assert.Equal(t, "2.1", cfg.Forum.Version)
}

func TestLoad_Errors(t *testing.T) {
	root := isolate(t)

	_, err := config.Load(config.LoadOptions{ForumRoot: root, File: filepath.Join(root, "missing.toml")})
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))

	require.NoError(t, os.WriteFile(filepath.Join(root, "modman.toml"), []byte("[forum\n"), 0644))
	_, err = config.Load(config.LoadOptions{ForumRoot: root})
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
}
