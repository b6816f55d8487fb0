package archive

import (
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
)

// SanitizePath rewrites an archive member name to a relative, slash
// separated path. Backslashes become slashes, drive letters and leading
// slashes are dropped, and empty, "." and ".." segments are removed, so
// "../../etc/passwd" becomes "etc/passwd". A trailing slash is kept.
func SanitizePath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	dir := strings.HasSuffix(name, "/")

	if len(name) >= 2 && name[1] == ':' {
		name = name[2:]
	}

	parts := strings.Split(name, "/")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimRight(part, "\x00")
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return ""
	}

	out := strings.Join(kept, "/")
	if dir {
		out += "/"
	}
	return out
}

// joinUnder joins a sanitized relative path to root and verifies the
// result stays inside root.
func joinUnder(root, rel string) (string, error) {
	rootClean := filepath.Clean(root)
	target := filepath.Join(rootClean, filepath.FromSlash(strings.TrimSuffix(rel, "/")))

	if target == rootClean {
		return target, nil
	}
	prefix := rootClean
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(target, prefix) {
		return "", errors.Newf(errors.ErrPathOutsideRoot, "entry %q escapes %s", rel, root)
	}
	return target, nil
}
