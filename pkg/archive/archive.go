package archive

import (
	stderrors "errors"
	"hash/crc32"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/filesystem"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/rs/zerolog"
)

// Detect identifies the container format from the leading magic bytes
func Detect(data []byte) (Format, error) {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return FormatTarGz, nil
	case len(data) >= 2 && data[0] == 'P' && data[1] == 'K':
		return FormatZip, nil
	}
	return "", errors.New(errors.ErrUnsupportedFormat, "unrecognised archive magic")
}

// Extract decodes a TAR+gzip or ZIP archive in the mode selected by opts
func Extract(data []byte, opts Options) (*Result, error) {
	logger := logging.GetLogger("archive")

	format, err := Detect(data)
	if err != nil {
		return nil, err
	}

	x := newExtractor(opts, format, logger)
	logger.Debug().
		Str("format", string(format)).
		Str("size", logging.Size(len(data))).
		Str("mode", x.mode()).
		Msg("Extracting archive")

	switch format {
	case FormatTarGz:
		payload, err := gunzip(data)
		if err != nil {
			return nil, err
		}
		err = walkTar(payload, x.visit, x.skip)
		if err != nil {
			return nil, err
		}
	case FormatZip:
		if err := walkZip(data, x.visit, x.skip); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("format", string(format)).
		Int("entries", len(x.result.Entries)).
		Int("skipped", len(x.result.Skipped)).
		Int("written", len(x.result.Written)).
		Msg("Archive processed")
	return x.result, nil
}

// ExtractDir treats a plain directory as a package and runs it through the
// same modes as an archive. The directory is read through opts.FS.
func ExtractDir(src string, opts Options) (*Result, error) {
	logger := logging.GetLogger("archive")
	x := newExtractor(opts, FormatDirectory, logger)

	info, err := x.fs.Stat(src)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "package directory %s", src)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrUnsupportedFormat, "%s is not a directory", src)
	}

	if _, err := x.walkDir(src, ""); err != nil {
		return nil, err
	}
	return x.result, nil
}

type extractor struct {
	opts   Options
	fs     types.FS
	result *Result
	logger zerolog.Logger
}

func newExtractor(opts Options, format Format, logger zerolog.Logger) *extractor {
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	return &extractor{
		opts:   opts,
		fs:     fsys,
		result: &Result{Format: format},
		logger: logger,
	}
}

func (x *extractor) mode() string {
	switch {
	case x.opts.singleFile():
		return "single"
	case x.opts.listOnly():
		return "list"
	}
	return "full"
}

func (x *extractor) skip(name, reason string) {
	x.logger.Debug().Str("entry", name).Str("reason", reason).Msg("Skipping archive entry")
	x.result.Skipped = append(x.result.Skipped, SkippedEntry{Path: SanitizePath(name), Reason: reason})
}

// visit handles one decoded entry according to the extraction mode
func (x *extractor) visit(e Entry) (bool, error) {
	e.Path = SanitizePath(e.Path)
	if e.Path == "" {
		return false, nil
	}

	if x.opts.singleFile() {
		if e.IsDir || !matchSingle(x.opts.SingleFile, e.Path) {
			return false, nil
		}
		x.result.Entries = append(x.result.Entries, e)
		x.result.Data = e.Data
		x.result.Found = true
		return true, nil
	}

	x.result.Entries = append(x.result.Entries, e)
	if x.opts.listOnly() {
		return false, nil
	}
	return false, x.write(e)
}

// write places one entry below the destination root
func (x *extractor) write(e Entry) error {
	if x.opts.AllowList != nil && !x.opts.AllowList[e.Path] {
		return nil
	}

	target, err := joinUnder(x.opts.Destination, e.Path)
	if err != nil {
		return err
	}

	if e.IsDir {
		return x.retry(target, true, func() error {
			return x.fs.MkdirAll(target, dirMode(e.Mode))
		})
	}

	if existing, err := x.fs.Stat(target); err == nil && !existing.IsDir() {
		if !x.opts.Overwrite && !e.ModTime.After(existing.ModTime()) {
			x.logger.Debug().Str("path", target).Msg("Keeping newer existing file")
			return nil
		}
	}

	parent := filepath.Dir(target)
	if err := x.retry(parent, true, func() error { return x.fs.MkdirAll(parent, 0755) }); err != nil {
		return err
	}
	if err := x.retry(target, false, func() error {
		return x.fs.WriteFile(target, e.Data, fileMode(e.Mode))
	}); err != nil {
		return err
	}
	if !e.ModTime.IsZero() {
		_ = x.fs.Chtimes(target, e.ModTime, e.ModTime)
	}

	x.result.Written = append(x.result.Written, target)
	return nil
}

// retry runs op and, when it is refused for lack of permission, asks the
// fallback to make path writable and runs it once more.
func (x *extractor) retry(path string, isDir bool, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, fs.ErrPermission) || x.opts.Fallback == nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "extract %s", path)
	}

	x.logger.Info().Str("path", path).Msg("Write refused, using permission fallback")
	if ferr := x.opts.Fallback.MakeWritable(path, isDir); ferr != nil {
		return errors.Wrapf(ferr, errors.ErrPermission, "make %s writable", path)
	}
	if err := op(); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "extract %s after fallback", path)
	}
	return nil
}

// walkDir visits every entry below dir in lexical order. rel is the slash
// separated path of dir relative to the package root.
func (x *extractor) walkDir(dir, rel string) (bool, error) {
	entries, err := x.fs.ReadDir(dir)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "read directory %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, de := range entries {
		full := filepath.Join(dir, de.Name())
		name := path.Join(rel, de.Name())

		info, err := x.fs.Stat(full)
		if err != nil {
			return false, errors.Wrapf(err, errors.ErrFileAccess, "stat %s", full)
		}

		entry := Entry{
			Path:    name,
			IsDir:   info.IsDir(),
			ModTime: info.ModTime().UTC(),
			Mode:    info.Mode().Perm(),
			Size:    info.Size(),
		}
		if entry.IsDir {
			entry.Path += "/"
		} else {
			if entry.Data, err = x.fs.ReadFile(full); err != nil {
				return false, errors.Wrapf(err, errors.ErrFileAccess, "read %s", full)
			}
			entry.Checksum = crc32.ChecksumIEEE(entry.Data)
		}

		stop, err := x.visit(entry)
		if err != nil || stop {
			return stop, err
		}
		if entry.IsDir {
			if stop, err := x.walkDir(full, name); err != nil || stop {
				return stop, err
			}
		}
	}
	return false, nil
}

func dirMode(m fs.FileMode) fs.FileMode {
	if m == 0 {
		return 0755
	}
	return m | 0700
}

func fileMode(m fs.FileMode) fs.FileMode {
	if m == 0 {
		return 0644
	}
	return m | 0600
}
