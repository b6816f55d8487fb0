package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFS implements types.FS with in-memory storage. Unlike afero's
// MemMapFs it enforces owner write bits, so tests can exercise the
// chmod and FTP fallback paths.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string]*fileNode

	// Error injection
	errorPaths map[string]error

	// Statistics
	readCount  int
	writeCount int
}

// fileNode represents a file or directory in memory
type fileNode struct {
	name     string
	mode     os.FileMode
	modTime  time.Time
	content  []byte
	isDir    bool
	children map[string]*fileNode
}

// NewMemoryFS creates a new in-memory filesystem
func NewMemoryFS() *MemoryFS {
	root := &fileNode{
		name:     "/",
		mode:     0755 | os.ModeDir,
		modTime:  time.Now(),
		isDir:    true,
		children: make(map[string]*fileNode),
	}

	return &MemoryFS{
		files:      map[string]*fileNode{"/": root},
		errorPaths: make(map[string]error),
	}
}

// normalizePath converts a path to absolute slash form
func (m *MemoryFS) normalizePath(path string) string {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// getNode retrieves a node at the given path
func (m *MemoryFS) getNode(op, path string) (*fileNode, error) {
	path = m.normalizePath(path)

	if err, ok := m.errorPaths[path]; ok {
		return nil, err
	}

	node, exists := m.files[path]
	if !exists {
		return nil, &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
	}

	return node, nil
}

// parentDir returns the directory node that holds path
func (m *MemoryFS) parentDir(op, path string) (*fileNode, error) {
	dir := filepath.ToSlash(filepath.Dir(path))
	parent, err := m.getNode(op, dir)
	if err != nil {
		return nil, err
	}
	if !parent.isDir {
		return nil, &fs.PathError{Op: op, Path: dir, Err: errors.New("not a directory")}
	}
	return parent, nil
}

func writable(node *fileNode) bool {
	return node.mode.Perm()&0200 != 0
}

// ReadFile reads the entire file content
func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCount++

	node, err := m.getNode("read", name)
	if err != nil {
		return nil, err
	}
	if node.isDir {
		return nil, &fs.PathError{Op: "read", Path: name, Err: errors.New("is a directory")}
	}

	// Return a copy to prevent mutation
	content := make([]byte, len(node.content))
	copy(content, node.content)
	return content, nil
}

// WriteFile writes data to a file. Parent directories must exist and be writable.
func (m *MemoryFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCount++

	path := m.normalizePath(name)
	if err, ok := m.errorPaths[path]; ok {
		return err
	}

	if node, ok := m.files[path]; ok {
		if node.isDir {
			return &fs.PathError{Op: "write", Path: path, Err: errors.New("is a directory")}
		}
		if !writable(node) {
			return &fs.PathError{Op: "write", Path: path, Err: fs.ErrPermission}
		}
		node.content = append([]byte(nil), data...)
		node.modTime = time.Now()
		return nil
	}

	parent, err := m.parentDir("write", path)
	if err != nil {
		return err
	}
	if !writable(parent) {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrPermission}
	}

	node := &fileNode{
		name:    filepath.Base(path),
		mode:    perm.Perm(),
		modTime: time.Now(),
		content: append([]byte(nil), data...),
	}
	parent.children[node.name] = node
	m.files[path] = node
	return nil
}

// Stat returns file info
func (m *MemoryFS) Stat(name string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, err := m.getNode("stat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{node: node, name: filepath.Base(name)}, nil
}

// Lstat behaves like Stat; MemoryFS has no links
func (m *MemoryFS) Lstat(name string) (os.FileInfo, error) {
	return m.Stat(name)
}

// Remove removes a file or empty directory
func (m *MemoryFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.normalizePath(name)
	node, err := m.getNode("remove", path)
	if err != nil {
		return err
	}
	if node.isDir && len(node.children) > 0 {
		return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
	}

	parent, err := m.parentDir("remove", path)
	if err != nil {
		return err
	}
	if !writable(parent) {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	}

	delete(parent.children, node.name)
	delete(m.files, path)
	return nil
}

// RemoveAll removes a file or directory recursively
func (m *MemoryFS) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = m.normalizePath(path)
	if _, ok := m.files[path]; !ok {
		return nil
	}
	if parent, err := m.parentDir("remove", path); err == nil && !writable(parent) {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	}

	for p := range m.files {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.files, p)
		}
	}
	if parent, ok := m.files[filepath.ToSlash(filepath.Dir(path))]; ok {
		delete(parent.children, filepath.Base(path))
	}
	return nil
}

// MkdirAll creates a directory and all necessary parents
func (m *MemoryFS) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = m.normalizePath(path)
	if node, ok := m.files[path]; ok {
		if !node.isDir {
			return &fs.PathError{Op: "mkdir", Path: path, Err: errors.New("file exists")}
		}
		return nil
	}

	current := "/"
	currentNode := m.files["/"]
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next := filepath.ToSlash(filepath.Join(current, part))

		if child, exists := currentNode.children[part]; exists {
			if !child.isDir {
				return &fs.PathError{Op: "mkdir", Path: next, Err: errors.New("not a directory")}
			}
			currentNode, current = child, next
			continue
		}

		if !writable(currentNode) {
			return &fs.PathError{Op: "mkdir", Path: next, Err: fs.ErrPermission}
		}
		newDir := &fileNode{
			name:     part,
			mode:     perm.Perm() | os.ModeDir,
			modTime:  time.Now(),
			isDir:    true,
			children: make(map[string]*fileNode),
		}
		currentNode.children[part] = newDir
		m.files[next] = newDir
		currentNode, current = newDir, next
	}
	return nil
}

// ReadDir reads a directory and returns its entries sorted by name
func (m *MemoryFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, err := m.getNode("readdir", name)
	if err != nil {
		return nil, err
	}
	if !node.isDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}

	entries := make([]fs.DirEntry, 0, len(node.children))
	for childName, child := range node.children {
		entries = append(entries, fs.FileInfoToDirEntry(&fileInfo{node: child, name: childName}))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Rename moves a file or directory subtree
func (m *MemoryFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, to := m.normalizePath(oldpath), m.normalizePath(newpath)
	node, err := m.getNode("rename", from)
	if err != nil {
		return err
	}
	oldParent, err := m.parentDir("rename", from)
	if err != nil {
		return err
	}
	newParent, err := m.parentDir("rename", to)
	if err != nil {
		return err
	}
	if !writable(oldParent) || !writable(newParent) {
		return &fs.PathError{Op: "rename", Path: from, Err: fs.ErrPermission}
	}

	moved := make(map[string]*fileNode)
	for p, n := range m.files {
		if p == from || strings.HasPrefix(p, from+"/") {
			moved[to+strings.TrimPrefix(p, from)] = n
			delete(m.files, p)
		}
	}
	for p, n := range moved {
		m.files[p] = n
	}

	delete(oldParent.children, node.name)
	node.name = filepath.Base(to)
	newParent.children[node.name] = node
	return nil
}

// Chmod changes permission bits, keeping the directory flag
func (m *MemoryFS) Chmod(name string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.getNode("chmod", name)
	if err != nil {
		return err
	}
	node.mode = (node.mode &^ os.ModePerm) | mode.Perm()
	return nil
}

// Chtimes sets the modification time
func (m *MemoryFS) Chtimes(name string, _, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.getNode("chtimes", name)
	if err != nil {
		return err
	}
	node.modTime = mtime
	return nil
}

// WithError configures the filesystem to return an error for a specific path
func (m *MemoryFS) WithError(path string, err error) *MemoryFS {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorPaths[m.normalizePath(path)] = err
	return m
}

// Stats returns filesystem operation statistics
func (m *MemoryFS) Stats() (reads, writes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCount, m.writeCount
}

// fileInfo implements os.FileInfo
type fileInfo struct {
	node *fileNode
	name string
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(len(fi.node.content)) }
func (fi *fileInfo) Mode() os.FileMode  { return fi.node.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.node.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.node.isDir }
func (fi *fileInfo) Sys() interface{}   { return nil }
