// pkg/testutil/environment.go
// DEPENDENCIES: paths, state, filesystem
// PURPOSE: Build forum test environments backed by memory or a temp directory

package testutil

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/modman/pkg/filesystem"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
)

// EnvType defines the type of test environment
type EnvType int

const (
	EnvMemoryOnly EnvType = iota // Pure in-memory, no real filesystem
	EnvIsolated                  // Real filesystem in temp directory
)

// LoadPHP is the body of Sources/Load.php in a fresh forum.
const LoadPHP = "<?php\n// MARKER\n"

// ForumFiles is the minimal forum tree every environment starts with.
var ForumFiles = map[string]string{
	"Settings.php":                      "<?php\n",
	"Sources/Load.php":                  LoadPHP,
	"Themes/default/index.template.php": "<?php\n",
}

// Environment is a forum install with its state and cache directories.
type Environment struct {
	Root     string
	StateDir string
	CacheDir string
	PkgDir   string

	FS    types.FS
	Mem   *MemoryFS // nil for EnvIsolated
	Forum *paths.Forum
	State *state.Store

	Type EnvType

	t *testing.T
}

// NewEnvironment creates a forum environment seeded with ForumFiles.
func NewEnvironment(t *testing.T, envType EnvType) *Environment {
	t.Helper()

	env := &Environment{t: t, Type: envType}
	base := "/"
	switch envType {
	case EnvMemoryOnly:
		env.Mem = NewMemoryFS()
		env.FS = env.Mem
	case EnvIsolated:
		base = t.TempDir()
		env.FS = filesystem.NewOS()
	}

	env.Root = filepath.Join(base, "forum")
	env.StateDir = filepath.Join(base, "state")
	env.CacheDir = filepath.Join(base, "cache")
	env.PkgDir = filepath.Join(base, "pkgs")

	env.WithFiles(ForumFiles)
	if err := env.FS.MkdirAll(env.PkgDir, 0755); err != nil {
		t.Fatalf("Failed to create package directory: %v", err)
	}

	forum, err := paths.NewForum(env.Root, nil)
	if err != nil {
		t.Fatalf("Failed to create forum layout: %v", err)
	}
	env.Forum = forum
	env.State = state.NewStore(env.FS, env.StateDir)
	return env
}

// WithFiles writes files relative to the forum root.
func (env *Environment) WithFiles(files map[string]string) *Environment {
	env.t.Helper()
	for rel, body := range files {
		env.write(filepath.Join(env.Root, rel), []byte(body))
	}
	return env
}

// AddPackage writes an archive into the package directory and returns its path.
func (env *Environment) AddPackage(name string, data []byte) string {
	env.t.Helper()
	p := filepath.Join(env.PkgDir, name)
	env.write(p, data)
	return p
}

// Path joins rel onto the forum root.
func (env *Environment) Path(rel string) string {
	return filepath.Join(env.Root, rel)
}

func (env *Environment) write(p string, data []byte) {
	if err := env.FS.MkdirAll(filepath.Dir(p), 0755); err != nil {
		env.t.Fatalf("Failed to create directory %s: %v", filepath.Dir(p), err)
	}
	if err := env.FS.WriteFile(p, data, 0644); err != nil {
		env.t.Fatalf("Failed to write file %s: %v", p, err)
	}
}
