package archive

import (
	"io/fs"
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/types"
)

// Format identifies an archive container
type Format string

const (
	FormatTarGz     Format = "tar.gz"
	FormatZip       Format = "zip"
	FormatDirectory Format = "directory"
)

// Entry is one member of an archive. Entries are created during a single
// extraction pass and are not modified afterwards.
type Entry struct {
	// Path is relative, slash separated and sanitized
	Path    string
	IsDir   bool
	Data    []byte
	ModTime time.Time
	Mode    fs.FileMode
	Size    int64

	// Checksum is the TAR header checksum or the ZIP CRC32
	Checksum uint32
}

// SkippedEntry records an entry that was not extracted and why
type SkippedEntry struct {
	Path   string
	Reason string
}

// Options selects the extraction mode and its policies
type Options struct {
	// Destination is the directory to extract into; empty means no writes
	Destination string

	// SingleFile fetches one entry's bytes; "*/name" matches name under any directory
	SingleFile string

	// Overwrite replaces existing files regardless of their modification time
	Overwrite bool

	// AllowList, when non-nil, restricts full extraction to these sanitized paths
	AllowList map[string]bool

	// FS receives the writes of a full extraction
	FS types.FS

	// Fallback is asked to make a path writable when a write is refused
	Fallback types.PermissionFallback
}

func (o Options) singleFile() bool { return o.SingleFile != "" }

func (o Options) listOnly() bool { return o.Destination == "" && o.SingleFile == "" }

// Result is the outcome of one extraction pass
type Result struct {
	Format  Format
	Entries []Entry
	Skipped []SkippedEntry

	// Data and Found answer a single file fetch
	Data  []byte
	Found bool

	// Written lists the destination paths written by a full extraction
	Written []string
}

// Has reports whether the archive holds an entry with the given path
func (r *Result) Has(path string) bool {
	_, ok := r.Find(path)
	return ok
}

// Find returns the first entry matching pattern, using single file rules
func (r *Result) Find(pattern string) (Entry, bool) {
	for _, e := range r.Entries {
		if matchSingle(pattern, e.Path) {
			return e, true
		}
	}
	return Entry{}, false
}

// Files returns the paths of all non-directory entries
func (r *Result) Files() []string {
	var out []string
	for _, e := range r.Entries {
		if !e.IsDir {
			out = append(out, e.Path)
		}
	}
	return out
}

// matchSingle implements the single file pattern: an exact path, or with a
// "*/" prefix the same path below any directory.
func matchSingle(pattern, path string) bool {
	pattern = strings.TrimSuffix(pattern, "/")
	path = strings.TrimSuffix(path, "/")
	if rest, ok := strings.CutPrefix(pattern, "*/"); ok {
		return path == rest || strings.HasSuffix(path, "/"+rest)
	}
	return path == pattern
}
