// Package stage is the write cache between an install run and the forum
// tree. Every mutation is journaled and mirrored in an overlay so later
// reads see earlier staged writes; nothing reaches storage until Commit.
//
// Commit is two-phase: every target is first checked for write access,
// repaired with a local chmod ladder and then the permission fallback
// (FTP), and only when all of them are writable is the journal applied in
// order. A run that cannot be made writable leaves the tree untouched.
package stage

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/rs/zerolog"
)

type opKind int

const (
	opWrite opKind = iota
	opMkdir
	opRemove
	opRename
)

func (k opKind) String() string {
	return [...]string{"write", "mkdir", "remove", "rename"}[k]
}

// op is one journal entry
type op struct {
	kind opKind
	path string
	to   string
	data []byte
}

// node is the overlay view of one path
type node struct {
	data    []byte
	isDir   bool
	deleted bool
}

// Stage journals writes against an FS
type Stage struct {
	fs           types.FS
	fallback     types.PermissionFallback
	backupSuffix string

	journal []op
	overlay map[string]*node
	logger  zerolog.Logger
}

// Option configures a Stage
type Option func(*Stage)

// WithFallback sets the helper used when chmod cannot make a path writable
func WithFallback(f types.PermissionFallback) Option {
	return func(s *Stage) { s.fallback = f }
}

// WithBackup keeps the previous content of overwritten files at path+suffix
func WithBackup(suffix string) Option {
	return func(s *Stage) { s.backupSuffix = suffix }
}

// New creates an empty stage over fsys
func New(fsys types.FS, opts ...Option) *Stage {
	s := &Stage{
		fs:      fsys,
		overlay: make(map[string]*node),
		logger:  logging.GetLogger("stage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FS returns the filesystem the stage commits to
func (s *Stage) FS() types.FS { return s.fs }

func clean(path string) string { return filepath.Clean(path) }

// lookup returns the overlay node for path, or a deleted node when an
// ancestor was removed, or nil when the overlay has no opinion.
func (s *Stage) lookup(path string) *node {
	if n, ok := s.overlay[path]; ok {
		return n
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if n, ok := s.overlay[dir]; ok && n.deleted {
			return n
		}
		if next := filepath.Dir(dir); next == dir {
			return nil
		}
	}
}

// Read returns the staged content of path, falling back to storage
func (s *Stage) Read(path string) ([]byte, error) {
	path = clean(path)
	if n := s.lookup(path); n != nil {
		if n.deleted {
			return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
		}
		if n.isDir {
			return nil, errors.Newf(errors.ErrFileAccess, "%s is a directory", path)
		}
		return append([]byte(nil), n.data...), nil
	}
	return s.fs.ReadFile(path)
}

// Exists reports whether path exists once the journal is applied
func (s *Stage) Exists(path string) bool {
	path = clean(path)
	if n := s.lookup(path); n != nil {
		return !n.deleted
	}
	_, err := s.fs.Stat(path)
	return err == nil
}

// IsDir reports whether path is a directory once the journal is applied
func (s *Stage) IsDir(path string) bool {
	path = clean(path)
	if n := s.lookup(path); n != nil {
		return !n.deleted && n.isDir
	}
	info, err := s.fs.Stat(path)
	return err == nil && info.IsDir()
}

// Writable reports whether path can be written now: an existing file must
// carry the owner write bit, a missing one needs a writable nearest
// existing directory.
func (s *Stage) Writable(path string) bool {
	target, _ := s.accessTarget(clean(path))
	return s.writableNow(target)
}

func (s *Stage) writableNow(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && info.Mode().Perm()&0200 != 0
}

// accessTarget returns the existing path whose permissions decide whether
// path can be created or replaced.
func (s *Stage) accessTarget(path string) (string, bool) {
	if info, err := s.fs.Stat(path); err == nil {
		return path, info.IsDir()
	}
	return s.existingParent(path), true
}

func (s *Stage) existingParent(path string) string {
	dir := filepath.Dir(path)
	for {
		if info, err := s.fs.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		next := filepath.Dir(dir)
		if next == dir {
			return dir
		}
		dir = next
	}
}

// Write stages the full content of a file
func (s *Stage) Write(path string, data []byte) error {
	path = clean(path)
	if s.IsDir(path) {
		return errors.Newf(errors.ErrFileWrite, "cannot write %s: is a directory", path)
	}
	data = append([]byte(nil), data...)
	s.overlay[path] = &node{data: data}
	s.journal = append(s.journal, op{kind: opWrite, path: path, data: data})
	return nil
}

// Mkdir stages a directory and its missing parents
func (s *Stage) Mkdir(path string) error {
	path = clean(path)
	if s.Exists(path) {
		if !s.IsDir(path) {
			return errors.Newf(errors.ErrFileWrite, "cannot create directory %s: file exists", path)
		}
		return nil
	}
	s.overlay[path] = &node{isDir: true}
	s.journal = append(s.journal, op{kind: opMkdir, path: path})
	return nil
}

// Remove stages the removal of a file or a whole directory tree
func (s *Stage) Remove(path string) error {
	path = clean(path)
	if !s.Exists(path) {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	s.dropOverlayBelow(path)
	s.overlay[path] = &node{deleted: true}
	s.journal = append(s.journal, op{kind: opRemove, path: path})
	return nil
}

// Rename stages a move of a file or directory tree. The overlay is given
// a snapshot of the moved content so staged reads under the destination
// work before commit.
func (s *Stage) Rename(from, to string) error {
	from, to = clean(from), clean(to)
	if !s.Exists(from) {
		return &fs.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}

	files, dirs, err := s.snapshot(from)
	if err != nil {
		return err
	}

	s.dropOverlayBelow(from)
	s.overlay[from] = &node{deleted: true}
	s.dropOverlayBelow(to)
	for _, d := range dirs {
		s.overlay[filepath.Join(to, d)] = &node{isDir: true}
	}
	for rel, data := range files {
		s.overlay[filepath.Join(to, rel)] = &node{data: data}
	}

	s.journal = append(s.journal, op{kind: opRename, path: from, to: to})
	return nil
}

// Copy stages the files of src, read directly from the filesystem, below
// dst. It is used to place package content into the forum tree.
func (s *Stage) Copy(src, dst string) error {
	src, dst = clean(src), clean(dst)
	info, err := s.fs.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrNotFound, "copy source %s", src)
	}

	if !info.IsDir() {
		data, err := s.fs.ReadFile(src)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "read %s", src)
		}
		return s.Write(dst, data)
	}

	if err := s.Mkdir(dst); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "read directory %s", src)
	}
	for _, e := range entries {
		if err := s.Copy(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// snapshot collects the content below path relative to it, merging
// storage with the overlay.
func (s *Stage) snapshot(path string) (map[string][]byte, []string, error) {
	files := make(map[string][]byte)
	var dirs []string

	if !s.IsDir(path) {
		data, err := s.Read(path)
		if err != nil {
			return nil, nil, err
		}
		files["."] = data
		return files, nil, nil
	}

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, errors.ErrFileAccess, "read directory %s", dir)
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			r := filepath.Join(rel, e.Name())
			if n := s.lookup(full); n != nil && n.deleted {
				continue
			}
			if e.IsDir() {
				dirs = append(dirs, r)
				if err := walk(full, r); err != nil {
					return err
				}
				continue
			}
			data, err := s.Read(full)
			if err != nil {
				return err
			}
			files[r] = data
		}
		return nil
	}
	if err := walk(path, ""); err != nil {
		return nil, nil, err
	}

	prefix := path + string(filepath.Separator)
	for p, n := range s.overlay {
		if !strings.HasPrefix(p, prefix) || n.deleted {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		if n.isDir {
			dirs = append(dirs, rel)
		} else {
			files[rel] = n.data
		}
	}
	sort.Strings(dirs)
	return files, dirs, nil
}

func (s *Stage) dropOverlayBelow(path string) {
	prefix := path + string(filepath.Separator)
	for p := range s.overlay {
		if strings.HasPrefix(p, prefix) {
			delete(s.overlay, p)
		}
	}
}

// Pending returns a description of every journaled mutation
func (s *Stage) Pending() []string {
	out := make([]string, 0, len(s.journal))
	for _, o := range s.journal {
		line := o.kind.String() + " " + o.path
		if o.kind == opRename {
			line += " -> " + o.to
		}
		out = append(out, line)
	}
	return out
}

// Discard drops everything staged so far
func (s *Stage) Discard() {
	s.journal = nil
	s.overlay = make(map[string]*node)
}
