package stage

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
)

// chmod ladders tried, in order, before the fallback
var (
	fileModes = []fs.FileMode{0644, 0664, 0666}
	dirModes  = []fs.FileMode{0755, 0775, 0777}
)

// Report summarises a commit
type Report struct {
	Written  []string
	Created  []string
	Removed  []string
	Moved    []string
	Chmodded []string
	Fallback []string
	Backups  []string
}

// target is a path whose write access a journal entry depends on
type target struct {
	path  string
	isDir bool
}

// targets returns the existing paths the journal needs write access to,
// sorted and without duplicates.
func (s *Stage) targets() []target {
	seen := make(map[string]bool)
	var out []target
	add := func(path string, isDir bool) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, target{path: path, isDir: isDir})
	}

	for _, o := range s.journal {
		switch o.kind {
		case opWrite:
			p, isDir := s.accessTarget(o.path)
			add(p, isDir)
			if s.backupSuffix != "" && p == o.path {
				add(s.existingParent(o.path), true)
			}
		case opMkdir:
			add(s.existingParent(o.path), true)
		case opRemove:
			add(s.existingParent(o.path), true)
		case opRename:
			add(s.existingParent(o.path), true)
			add(s.existingParent(o.to), true)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// ensureWritable tries the chmod ladder, then the fallback
func (s *Stage) ensureWritable(t target, report *Report) bool {
	if s.writableNow(t.path) {
		return true
	}

	modes := fileModes
	if t.isDir {
		modes = dirModes
	}
	for _, mode := range modes {
		if err := s.fs.Chmod(t.path, mode); err != nil {
			break
		}
		if s.writableNow(t.path) {
			report.Chmodded = append(report.Chmodded, t.path)
			s.logger.Debug().Str("path", t.path).Str("mode", mode.String()).Msg("Made writable with chmod")
			return true
		}
	}

	if s.fallback == nil {
		return false
	}
	if err := s.fallback.MakeWritable(t.path, t.isDir); err != nil {
		s.logger.Warn().Err(err).Str("path", t.path).Msg("Permission fallback failed")
		return false
	}
	if !s.writableNow(t.path) {
		return false
	}
	report.Fallback = append(report.Fallback, t.path)
	return true
}

// Check runs the permission phase of a commit without writing anything.
// It returns the paths that could not be made writable.
func (s *Stage) Check() ([]string, *Report) {
	report := &Report{}
	var blocked []string
	for _, t := range s.targets() {
		if !s.ensureWritable(t, report) {
			blocked = append(blocked, t.path)
		}
	}
	return blocked, report
}

// Commit makes every target writable and then applies the journal in
// order. When any target stays unwritable nothing is written and a
// PERMISSION error listing the paths is returned.
func (s *Stage) Commit() (*Report, error) {
	done := logging.LogOperationStart(s.logger, "stage.commit")
	defer done()

	blocked, report := s.Check()
	if len(blocked) > 0 {
		return report, errors.Newf(errors.ErrPermission, "%d path(s) are not writable", len(blocked)).
			WithDetail("paths", blocked)
	}

	for i, o := range s.journal {
		if err := s.apply(o, report); err != nil {
			return report, errors.Wrapf(err, errors.ErrFileWrite, "commit step %d (%s %s)", i+1, o.kind, o.path).
				WithDetail("applied", i)
		}
	}

	s.logger.Info().
		Int("written", len(report.Written)).
		Int("created", len(report.Created)).
		Int("removed", len(report.Removed)).
		Int("moved", len(report.Moved)).
		Msg("Stage committed")

	s.Discard()
	return report, nil
}

func (s *Stage) apply(o op, report *Report) error {
	switch o.kind {
	case opWrite:
		mode := fs.FileMode(0644)
		if info, err := s.fs.Stat(o.path); err == nil {
			mode = info.Mode().Perm()
			if s.backupSuffix != "" {
				if err := s.backup(o.path, mode, report); err != nil {
					return err
				}
			}
		}
		if err := s.fs.MkdirAll(filepath.Dir(o.path), 0755); err != nil {
			return err
		}
		if err := s.fs.WriteFile(o.path, o.data, mode); err != nil {
			return err
		}
		report.Written = append(report.Written, o.path)

	case opMkdir:
		if err := s.fs.MkdirAll(o.path, 0755); err != nil {
			return err
		}
		report.Created = append(report.Created, o.path)

	case opRemove:
		err := s.fs.RemoveAll(o.path)
		if err != nil && stderrors.Is(err, fs.ErrPermission) && s.fallback != nil {
			info, serr := s.fs.Stat(o.path)
			err = s.fallback.Remove(o.path, serr == nil && info.IsDir())
		}
		if err != nil {
			return err
		}
		report.Removed = append(report.Removed, o.path)

	case opRename:
		if err := s.fs.MkdirAll(filepath.Dir(o.to), 0755); err != nil {
			return err
		}
		if err := s.fs.Rename(o.path, o.to); err != nil {
			return err
		}
		report.Moved = append(report.Moved, o.path+" -> "+o.to)
	}
	return nil
}

// backup copies the current content of path once per commit
func (s *Stage) backup(path string, mode fs.FileMode, report *Report) error {
	dst := path + s.backupSuffix
	for _, b := range report.Backups {
		if b == dst {
			return nil
		}
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return err
	}
	if err := s.fs.WriteFile(dst, data, mode|0200); err != nil {
		return err
	}
	report.Backups = append(report.Backups, dst)
	return nil
}
