package types

import (
	"io/fs"
	"time"
)

// FS is the filesystem interface required for modman operations
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Mutations
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
}

// PermissionFallback makes paths writable when a direct write is refused,
// typically by chmod-ing them over FTP.
type PermissionFallback interface {
	// MakeWritable ensures path (a file or a directory) accepts writes,
	// creating an empty file first when a file is missing.
	MakeWritable(path string, isDir bool) error

	// Remove deletes a file or an empty directory.
	Remove(path string, isDir bool) error
}
