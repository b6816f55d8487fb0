package ftp

import (
	"path"
	"regexp"
	"strings"
)

var hostingHome = regexp.MustCompile(`^/home2?/([^/]+)/(public_html.*)$`)

// LocatePath guesses the FTP path of a local directory. It is a best
// effort used to pre-fill settings; callers must not depend on it.
//
// Common hosting layouts are recognised first (/home/<user>/public_html,
// /var/www). When the guessed path cannot be listed, a recursive listing
// is searched for lookupFile, preferring a match that also has the same
// parent directory name.
func (s *Session) LocatePath(filesystemPath, lookupFile string) (username, remote string, found bool) {
	local := strings.TrimSuffix(strings.ReplaceAll(filesystemPath, `\`, "/"), "/")

	switch m := hostingHome.FindStringSubmatch(local); {
	case m != nil:
		username, remote = m[1], m[2]
	case strings.HasPrefix(local, "/var/www/"):
		remote = strings.TrimPrefix(local, "/var/www")
	default:
		remote = local
	}

	if s.State() != Ready {
		return username, remote, false
	}

	if lines, err := s.List(remote, false); err == nil && len(lines) > 0 {
		return username, remote, true
	}

	listing, err := s.List("", true)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Recursive listing failed")
		return username, remote, false
	}
	files := listingPaths(listing)

	lookup := strings.ReplaceAll(lookupFile, `\`, "/")
	base := path.Base(lookup)
	parent := path.Base(path.Dir(lookup))

	match := ""
	if parent != "." && parent != "/" {
		match = locate(files, parent+"/"+base)
	}
	if match == "" {
		match = locate(files, base)
	}
	if match == "" {
		return username, remote, false
	}

	dir := path.Dir(match)
	if pwd, err := s.Pwd(); err == nil && !strings.HasPrefix(dir, "/") {
		dir = path.Join(pwd, dir)
	}
	return username, dir, true
}

// listingPaths turns a "LIST -R" reply into slash separated paths. Section
// headers ("./dir:") set the directory for the ls -l lines that follow.
func listingPaths(lines []string) []string {
	var out []string
	dir := "."
	for _, line := range lines {
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			dir = strings.TrimSuffix(line, ":")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 || strings.HasPrefix(line, "total ") {
			continue
		}
		name := strings.Join(fields[8:], " ")
		if name == "." || name == ".." {
			continue
		}
		out = append(out, path.Clean(path.Join(dir, name)))
	}
	return out
}

// locate returns the first path ending in suffix on a segment boundary
func locate(paths []string, suffix string) string {
	for _, p := range paths {
		if p == suffix || strings.HasSuffix(p, "/"+suffix) {
			return p
		}
	}
	return ""
}
