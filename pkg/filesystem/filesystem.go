package filesystem

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/arthur-debert/modman/pkg/types"
	"github.com/spf13/afero"
)

// aferoFS implements types.FS over an afero filesystem
type aferoFS struct {
	fs afero.Fs
}

// NewAferoFS wraps an afero filesystem
func NewAferoFS(fs afero.Fs) types.FS {
	return &aferoFS{fs: fs}
}

// NewOS returns the OS filesystem
func NewOS() types.FS {
	return NewAferoFS(afero.NewOsFs())
}

// NewMemory returns an afero in-memory filesystem
func NewMemory() types.FS {
	return NewAferoFS(afero.NewMemMapFs())
}

func (a *aferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(name)
}

func (a *aferoFS) Lstat(name string) (fs.FileInfo, error) {
	if lst, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lst.LstatIfPossible(name)
		return info, err
	}
	return a.fs.Stat(name)
}

func (a *aferoFS) ReadFile(name string) ([]byte, error) {
	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(a.fs, name)
}

// WriteFile replaces name through a temporary sibling and a rename so a
// forum never serves a half-written source file. An existing file keeps
// its mode and must carry the owner write bit. When the directory refuses
// new entries the file is rewritten in place.
func (a *aferoFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if info, err := a.fs.Stat(name); err == nil {
		if info.IsDir() {
			return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
		}
		if info.Mode().Perm()&0200 == 0 {
			return &fs.PathError{Op: "write", Path: name, Err: fs.ErrPermission}
		}
		perm = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(a.fs, filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		if stderrors.Is(err, fs.ErrPermission) {
			return afero.WriteFile(a.fs, name, data, perm)
		}
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = a.fs.Chmod(tmpName, perm)
	}
	if err == nil {
		err = a.fs.Rename(tmpName, name)
	}
	if err != nil {
		_ = a.fs.Remove(tmpName)
	}
	return err
}

func (a *aferoFS) MkdirAll(path string, perm fs.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

func (a *aferoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

func (a *aferoFS) Remove(name string) error {
	return a.fs.Remove(name)
}

func (a *aferoFS) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

func (a *aferoFS) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}

func (a *aferoFS) Chmod(name string, mode fs.FileMode) error {
	return a.fs.Chmod(name, mode)
}

func (a *aferoFS) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Chtimes(name, atime, mtime)
}
