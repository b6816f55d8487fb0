package install

import (
	"path"
	"sort"
	"strings"

	"github.com/arthur-debert/modman/pkg/archive"
	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/source"
	"github.com/arthur-debert/modman/pkg/types"
)

// bundle is the content of a package held in memory, keyed by path
// relative to the directory holding package-info.xml.
type bundle struct {
	pkg   *source.Package
	info  *manifest.PackageInfo
	files map[string]archive.Entry
}

// openBundle lists pkg without extracting it and parses its manifest
func openBundle(fsys types.FS, pkg *source.Package) (*bundle, error) {
	var (
		res *archive.Result
		err error
	)
	if pkg.Format == archive.FormatDirectory {
		res, err = archive.ExtractDir(pkg.Path, archive.Options{FS: fsys})
	} else {
		res, err = archive.Extract(pkg.Data, archive.Options{})
	}
	if err != nil {
		return nil, err
	}

	base, ok := manifestBase(res)
	if !ok {
		return nil, errors.Newf(errors.ErrManifestInvalid, "%s holds no %s", pkg.Ref, manifest.FileName)
	}

	b := &bundle{pkg: pkg, files: make(map[string]archive.Entry)}
	for _, e := range res.Entries {
		rel := e.Path
		if base != "" {
			if !strings.HasPrefix(rel, base+"/") {
				continue
			}
			rel = strings.TrimPrefix(rel, base+"/")
		}
		if rel = strings.TrimSuffix(rel, "/"); rel != "" {
			b.files[rel] = e
		}
	}

	info, err := manifest.Parse(b.files[manifest.FileName].Data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "manifest of %s", pkg.Ref).
			WithDetail("package", pkg.Ref)
	}
	b.info = info
	return b, nil
}

// manifestBase finds the shallowest package-info.xml and returns its
// directory, "" for the package root.
func manifestBase(res *archive.Result) (string, bool) {
	var found []string
	for _, e := range res.Entries {
		if !e.IsDir && path.Base(e.Path) == manifest.FileName {
			found = append(found, e.Path)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Slice(found, func(i, j int) bool {
		di, dj := strings.Count(found[i], "/"), strings.Count(found[j], "/")
		if di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})
	dir := path.Dir(found[0])
	if dir == "." {
		dir = ""
	}
	return dir, true
}

func cleanRel(name string) string {
	return strings.TrimSuffix(archive.SanitizePath(name), "/")
}

// file returns the content of a package file
func (b *bundle) file(name string) ([]byte, bool) {
	e, ok := b.files[cleanRel(name)]
	if !ok || e.IsDir {
		return nil, false
	}
	return e.Data, true
}

// isDir reports whether name is a directory of the package
func (b *bundle) isDir(name string) bool {
	name = cleanRel(name)
	if e, ok := b.files[name]; ok {
		return e.IsDir
	}
	for rel := range b.files {
		if strings.HasPrefix(rel, name+"/") {
			return true
		}
	}
	return false
}

// tree returns the entries below the package directory name, keyed by
// path relative to it, in lexical order.
func (b *bundle) tree(name string) []archive.Entry {
	name = cleanRel(name)
	var out []archive.Entry
	for rel, e := range b.files {
		if strings.HasPrefix(rel, name+"/") {
			e.Path = strings.TrimPrefix(rel, name+"/")
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
