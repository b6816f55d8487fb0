package display

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/modman/pkg/archive"
	"github.com/arthur-debert/modman/pkg/install"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/stage"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/dustin/go-humanize"
)

// shorten rewrites absolute forum paths with placeholders
func shorten(forum *paths.Forum, p string) string {
	if forum == nil || p == "" {
		return p
	}
	return forum.Display(p)
}

// Results converts an action result log to lines
func Results(forum *paths.Forum, results types.Results) []Line {
	lines := make([]Line, 0, len(results))
	for _, r := range results {
		detail := r.Message
		if r.Search != "" && detail == "" {
			detail = fmt.Sprintf("%s %q", r.Position, firstLine(r.Search))
		}
		lines = append(lines, Line{
			Status: string(r.Kind),
			Action: r.Action,
			Path:   shorten(forum, r.Path),
			Theme:  r.Theme,
			Detail: detail,
			Fatal:  r.Fatal,
		})
	}
	return lines
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// Commit lists what a commit changed on disk
func Commit(forum *paths.Forum, report *stage.Report) []Line {
	if report == nil {
		return nil
	}
	var lines []Line
	add := func(status string, list []string) {
		for _, p := range list {
			lines = append(lines, Line{Status: status, Path: shorten(forum, p)})
		}
	}
	add("created", report.Created)
	add("written", report.Written)
	add("moved", report.Moved)
	add("removed", report.Removed)
	add("chmod", report.Chmodded)
	add("ftp", report.Fallback)
	add("backup", report.Backups)
	return lines
}

// Outcome builds the report of an install or uninstall run
func Outcome(command string, forum *paths.Forum, o *install.Outcome) *Report {
	r := NewReport(command)
	r.DryRun = o.DryRun
	r.Failed = o.Failed
	if o.Package != nil {
		r.Package = &Package{ID: o.Package.ID, Name: o.Package.Name, Version: o.Package.Version, Phase: string(o.Phase)}
	}
	r.Readme, r.License = o.Readme, o.License
	if o.ReadmeBBC {
		r.Readme = BBCToMarkdown(r.Readme)
	}
	if o.Redirect != nil {
		r.Redirect = o.Redirect.URL
	}

	r.Add("Actions", Results(forum, o.Results))
	r.Add("Changes", Commit(forum, o.Commit))

	switch {
	case o.Failed:
		r.Message = "Nothing was changed: an action failed."
	case o.DryRun:
		r.Message = "Dry run: nothing was changed."
	case o.Commit != nil:
		r.Message = fmt.Sprintf("%s finished, %d rollback steps recorded.", command, len(o.Rollback))
	}
	return r
}

// Records builds the listing of installed packages
func Records(records []*state.Record) *Report {
	r := NewReport("installed")
	lines := make([]Line, 0, len(records))
	for _, rec := range records {
		detail := rec.Version
		if !rec.InstalledAt.IsZero() {
			detail += ", installed " + humanize.Time(rec.InstalledAt)
		}
		if len(rec.Hooks) > 0 {
			detail += fmt.Sprintf(", %d hooks", len(rec.Hooks))
		}
		lines = append(lines, Line{Status: "installed", Action: rec.Type, Path: rec.ID, Detail: detail})
	}
	if len(lines) == 0 {
		r.Message = "No packages installed."
	}
	return r.Add("Installed", lines)
}

// Archive builds the listing of an archive's members
func Archive(ref string, res *archive.Result) *Report {
	r := NewReport("list")
	r.Message = fmt.Sprintf("%s (%s)", ref, res.Format)

	lines := make([]Line, 0, len(res.Entries))
	for _, e := range res.Entries {
		l := Line{Status: "file", Path: e.Path, Detail: humanize.Bytes(uint64(e.Size))}
		if e.IsDir {
			l.Status, l.Detail = "dir", ""
		}
		lines = append(lines, l)
	}
	r.Add("Entries", lines)

	skipped := make([]Line, 0, len(res.Skipped))
	for _, s := range res.Skipped {
		skipped = append(skipped, Line{Status: "skipped", Path: s.Path, Detail: s.Reason})
	}
	return r.Add("Skipped", skipped)
}
