package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/modman/pkg/errors"
)

// Environment variable names
const (
	EnvForumRoot = "MODMAN_FORUM_ROOT"
	EnvStateDir  = "MODMAN_STATE_DIR"
	EnvCacheDir  = "MODMAN_CACHE_DIR"
	EnvHome      = "HOME"
)

const (
	// AppDirName is the directory name used below the XDG homes
	AppDirName = "modman"

	// SettingsFile marks a forum root
	SettingsFile = "Settings.php"

	// InstalledDir is the state subdirectory holding package records
	InstalledDir = "installed"

	// DownloadsDir is the cache subdirectory holding fetched packages
	DownloadsDir = "downloads"
)

// Placeholder names
const (
	BoardDir    = "$boarddir"
	SourceDir   = "$sourcedir"
	ThemesDir   = "$themes_dir"
	ThemeDir    = "$themedir"
	LanguageDir = "$languagedir"
	ImagesDir   = "$imagesdir"
	AvatarDir   = "$avatardir"
	SmileysDir  = "$smileysdir"
	PackagesDir = "$packagesdir"
)

// Forum is the directory layout of one forum install
type Forum struct {
	root string
	dirs map[string]string

	// order lists placeholder names longest first so a name never
	// shadows a longer one sharing its prefix
	order []string
}

// NewForum builds the layout of the forum at root. overrides maps
// placeholder names, with or without the leading '$', to directories;
// relative directories are taken below root.
func NewForum(root string, overrides map[string]string) (*Forum, error) {
	if root == "" {
		return nil, errors.New(errors.ErrInvalidInput, "forum root is empty")
	}
	abs, err := filepath.Abs(ExpandHome(root))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to get absolute path for forum root")
	}

	f := &Forum{root: abs, dirs: make(map[string]string)}
	f.set(BoardDir, abs)
	f.set(SourceDir, filepath.Join(abs, "Sources"))
	f.set(ThemesDir, filepath.Join(abs, "Themes"))
	f.set(AvatarDir, filepath.Join(abs, "avatars"))
	f.set(SmileysDir, filepath.Join(abs, "Smileys"))
	f.set(PackagesDir, filepath.Join(abs, "Packages"))

	for name, dir := range overrides {
		if dir == "" {
			continue
		}
		if !strings.HasPrefix(name, "$") {
			name = "$" + name
		}
		if name == BoardDir {
			continue
		}
		dir = ExpandHome(dir)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(abs, dir)
		}
		f.set(name, filepath.Clean(dir))
	}

	// the default theme layout follows $themes_dir unless set explicitly
	if _, ok := f.dirs[ThemeDir]; !ok {
		f.set(ThemeDir, filepath.Join(f.dirs[ThemesDir], "default"))
	}
	if _, ok := f.dirs[LanguageDir]; !ok {
		f.set(LanguageDir, filepath.Join(f.dirs[ThemeDir], "languages"))
	}
	if _, ok := f.dirs[ImagesDir]; !ok {
		f.set(ImagesDir, filepath.Join(f.dirs[ThemeDir], "images"))
	}
	return f, nil
}

func (f *Forum) set(name, dir string) {
	if _, ok := f.dirs[name]; !ok {
		f.order = append(f.order, name)
		sort.Slice(f.order, func(i, j int) bool {
			if len(f.order[i]) != len(f.order[j]) {
				return len(f.order[i]) > len(f.order[j])
			}
			return f.order[i] < f.order[j]
		})
	}
	f.dirs[name] = dir
}

// Set adds or replaces a placeholder, for instance $package while a
// package is being installed.
func (f *Forum) Set(name, dir string) {
	if !strings.HasPrefix(name, "$") {
		name = "$" + name
	}
	f.set(name, filepath.Clean(dir))
}

// Root returns the forum root directory
func (f *Forum) Root() string { return f.root }

// Dir returns the directory behind a placeholder
func (f *Forum) Dir(name string) string { return f.dirs[name] }

// Placeholders returns a copy of the placeholder table
func (f *Forum) Placeholders() map[string]string {
	out := make(map[string]string, len(f.dirs))
	for k, v := range f.dirs {
		out[k] = v
	}
	return out
}

// Resolve expands placeholders in path. Paths left relative after
// expansion are taken below the forum root.
func (f *Forum) Resolve(path string) string {
	if path == "" {
		return ""
	}
	for _, name := range f.order {
		if strings.Contains(path, name) {
			path = strings.ReplaceAll(path, name, f.dirs[name])
		}
	}
	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, path)
	}
	return filepath.Clean(path)
}

// Contain resolves path and fails unless it stays below the forum root
func (f *Forum) Contain(path string) (string, error) {
	resolved := f.Resolve(path)
	if !Within(f.root, resolved) {
		return "", errors.Newf(errors.ErrPathOutsideRoot, "%s resolves outside the forum root", path).
			WithDetail("resolved", resolved)
	}
	return resolved, nil
}

// Display rewrites an absolute path with the most specific placeholder,
// for logs and stored state.
func (f *Forum) Display(path string) string {
	best, bestDir := "", ""
	for name, dir := range f.dirs {
		if Within(dir, path) && len(dir) > len(bestDir) {
			best, bestDir = name, dir
		}
	}
	if best == "" {
		return path
	}
	rel, _ := filepath.Rel(bestDir, path)
	if rel == "." {
		return best
	}
	return best + "/" + filepath.ToSlash(rel)
}

// Within reports whether path is root or below it
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// FindForumRoot determines the forum root using the following priority:
//  1. MODMAN_FORUM_ROOT
//  2. the closest directory at or above start holding Settings.php
//  3. start itself
//
// The bool result reports whether the fallback was used.
func FindForumRoot(start string) (string, bool) {
	if root := os.Getenv(EnvForumRoot); root != "" {
		return ExpandHome(root), false
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return start, true
	}
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(filepath.Join(d, SettingsFile)); err == nil {
			return d, false
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return dir, true
}

// StateDir returns where installed package records live
func StateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return ExpandHome(dir)
	}
	return filepath.Join(xdg.StateHome, AppDirName, InstalledDir)
}

// CacheDir returns where fetched packages are cached
func CacheDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return ExpandHome(dir)
	}
	return filepath.Join(xdg.CacheHome, AppDirName, DownloadsDir)
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}
	if path == "~" {
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
