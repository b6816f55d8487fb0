package state

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// StepKind names one rollback step
type StepKind string

const (
	// StepRemove deletes a file or directory the install created
	StepRemove StepKind = "remove"
	// StepMove moves Path back to To
	StepMove StepKind = "move"
	// StepUnpatch applies Script in reverse
	StepUnpatch StepKind = "unpatch"
	// StepUnhook drops a hook registration
	StepUnhook StepKind = "unhook"
)

// Step is one entry of a rollback manifest
type Step struct {
	Kind   StepKind `toml:"kind"`
	Path   string   `toml:"path,omitempty"`
	To     string   `toml:"to,omitempty"`
	Script string   `toml:"script,omitempty"`
	Format string   `toml:"format,omitempty"`
}

// Hook is a callback a package registers with the forum
type Hook struct {
	Name     string `toml:"name"`
	Function string `toml:"function"`
	File     string `toml:"file,omitempty"`
	Object   bool   `toml:"object,omitempty"`
}

// Credits is the attribution a package asks the forum to show
type Credits struct {
	Title     string `toml:"title,omitempty"`
	URL       string `toml:"url,omitempty"`
	License   string `toml:"license,omitempty"`
	Copyright string `toml:"copyright,omitempty"`
}

// Record is the stored state of one installed package
type Record struct {
	ID          string    `toml:"id"`
	Name        string    `toml:"name"`
	Version     string    `toml:"version"`
	Type        string    `toml:"type,omitempty"`
	InstalledAt time.Time `toml:"installed_at"`

	// Source is where the package was loaded from, used on uninstall
	Source string `toml:"source,omitempty"`
	Digest string `toml:"digest,omitempty"`

	Themes   []string `toml:"themes,omitempty"`
	Hooks    []Hook   `toml:"hooks,omitempty"`
	Credits  *Credits `toml:"credits,omitempty"`
	Rollback []Step   `toml:"rollback,omitempty"`
}

// Store keeps records as TOML files in a directory
type Store struct {
	fs     types.FS
	dir    string
	logger zerolog.Logger
}

// NewStore creates a store rooted at dir
func NewStore(fsys types.FS, dir string) *Store {
	return &Store{fs: fsys, dir: dir, logger: logging.GetLogger("state")}
}

// Dir returns the directory records are kept in
func (s *Store) Dir() string { return s.dir }

var fileNameReplacer = strings.NewReplacer(":", "__", "/", "_", "\\", "_")

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, fileNameReplacer.Replace(id)+".toml")
}

// Get loads the record of an installed package
func (s *Store) Get(id string) (*Record, error) {
	data, err := s.fs.ReadFile(s.path(id))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Newf(errors.ErrNotInstalled, "package %s is not installed", id).
				WithDetail("id", id)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "read state of %s", id)
	}

	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "parse state of %s", id)
	}
	return &rec, nil
}

// Installed reports whether a record exists for id
func (s *Store) Installed(id string) bool {
	_, err := s.fs.Stat(s.path(id))
	return err == nil
}

// Put stores rec, replacing any previous record with the same id
func (s *Store) Put(rec *Record) error {
	if rec.ID == "" {
		return errors.New(errors.ErrInvalidInput, "record has no package id")
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}

	data, err := toml.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "encode state of %s", rec.ID)
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "create state directory %s", s.dir)
	}
	if err := s.fs.WriteFile(s.path(rec.ID), data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "write state of %s", rec.ID)
	}

	s.logger.Debug().
		Str("id", rec.ID).
		Str("version", rec.Version).
		Int("rollback_steps", len(rec.Rollback)).
		Msg("Recorded package state")
	return nil
}

// Remove forgets an installed package
func (s *Store) Remove(id string) error {
	if !s.Installed(id) {
		return errors.Newf(errors.ErrNotInstalled, "package %s is not installed", id).WithDetail("id", id)
	}
	if err := s.fs.Remove(s.path(id)); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "remove state of %s", id)
	}
	return nil
}

// List returns every record sorted by id. Unreadable files are logged
// and skipped.
func (s *Store) List() ([]*Record, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "read state directory %s", s.dir)
	}

	var records []*Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Skipping unreadable state file")
			continue
		}
		var rec Record
		if err := toml.Unmarshal(data, &rec); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Skipping invalid state file")
			continue
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Hooks returns the registered hooks of every installed package grouped
// by hook name, in package id order.
func (s *Store) Hooks() (map[string][]Hook, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	hooks := make(map[string][]Hook)
	for _, rec := range records {
		for _, h := range rec.Hooks {
			hooks[h.Name] = append(hooks[h.Name], h)
		}
	}
	return hooks, nil
}
