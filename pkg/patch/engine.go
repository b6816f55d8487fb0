package patch

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/rs/zerolog"
)

// FileAccess is what the engine needs from the storage layer. The install
// stage implements it so that edits land in the write cache.
type FileAccess interface {
	Read(path string) ([]byte, error)
	Exists(path string) bool
	Writable(path string) bool
	Write(path string, data []byte) error
}

// Options controls one Apply run
type Options struct {
	// DryRun produces the full result log without writing
	DryRun bool

	// Reverse undoes the script, for uninstalls
	Reverse bool

	// Themes maps custom theme ids to their directories. Edits to files
	// below DefaultThemeDir are repeated for every theme holding a copy.
	Themes          map[string]string
	DefaultThemeDir string

	// Resolve expands path placeholders such as $sourcedir; nil keeps
	// paths unchanged.
	Resolve func(string) string
}

// Engine applies modification scripts
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a patch engine
func NewEngine() *Engine {
	return &Engine{logger: logging.GetLogger("patch")}
}

// Apply runs every file edit of script and returns the ordered result log.
// Files with a fatal failure are never written.
func (e *Engine) Apply(script *Script, files FileAccess, opts Options) types.Results {
	done := logging.LogOperationStart(e.logger, "patch.apply")
	defer done()

	if opts.DryRun {
		files = &dryFiles{FileAccess: files, written: map[string]string{}}
	}

	var results types.Results
	for _, fe := range script.Files {
		path := fe.Path
		if opts.Resolve != nil {
			path = opts.Resolve(path)
		}

		results = append(results, e.applyFile(fe, path, "", files, opts)...)

		for _, theme := range themeCopies(path, files, opts) {
			e.logger.Debug().Str("theme", theme.id).Str("path", theme.path).Msg("Applying edit to custom theme copy")
			results = append(results, e.applyFile(fe, theme.path, theme.id, files, opts)...)
		}
	}

	e.logger.Info().
		Str("script", script.ID).
		Bool("reverse", opts.Reverse).
		Bool("dry_run", opts.DryRun).
		Int("replaced", results.Count(types.ResultReplaced)).
		Int("failed", results.Count(types.ResultFailed)).
		Msg("Modification script applied")
	return results
}

// dryFiles keeps dry-run writes in memory so a later edit of the same
// path reads what a real run would have written.
type dryFiles struct {
	FileAccess
	written map[string]string
}

func (d *dryFiles) Read(path string) ([]byte, error) {
	if s, ok := d.written[path]; ok {
		return []byte(s), nil
	}
	return d.FileAccess.Read(path)
}

func (d *dryFiles) Exists(path string) bool {
	if _, ok := d.written[path]; ok {
		return true
	}
	return d.FileAccess.Exists(path)
}

func (d *dryFiles) Write(path string, data []byte) error {
	d.written[path] = string(data)
	return nil
}

type themeCopy struct {
	id   string
	path string
}

// themeCopies lists the custom theme files that mirror a default theme file
func themeCopies(path string, files FileAccess, opts Options) []themeCopy {
	if opts.DefaultThemeDir == "" || len(opts.Themes) == 0 {
		return nil
	}
	rel, err := filepath.Rel(opts.DefaultThemeDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}

	ids := make([]string, 0, len(opts.Themes))
	for id := range opts.Themes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []themeCopy
	for _, id := range ids {
		dir := opts.Themes[id]
		if filepath.Clean(dir) == filepath.Clean(opts.DefaultThemeDir) {
			continue
		}
		candidate := filepath.Join(dir, rel)
		if files.Exists(candidate) {
			out = append(out, themeCopy{id: id, path: candidate})
		}
	}
	return out
}

// fileRun accumulates the results for one target file
type fileRun struct {
	path   string
	theme  string
	soft   bool
	failed bool
	out    types.Results
}

func (r *fileRun) add(res types.ActionResult) {
	res.Path = r.path
	res.Theme = r.theme
	if r.soft {
		res.Fatal = false
	}
	r.out = append(r.out, res)
}

func (r *fileRun) fail(op EditOperation, pattern, msg string) {
	r.failed = true
	r.add(types.ActionResult{
		Kind:     types.ResultFailed,
		Position: string(op.Position),
		Search:   op.Search,
		Replace:  op.Replace,
		Pattern:  pattern,
		Fatal:    true,
		Message:  msg,
	})
}

// applyFile runs one file edit against path. Theme copies are soft: their
// failures are logged but never fail the install.
func (e *Engine) applyFile(fe FileEdit, path, theme string, files FileAccess, opts Options) types.Results {
	run := &fileRun{path: path, theme: theme, soft: theme != ""}
	logger := e.logger.With().Str("path", path).Logger()

	var content string
	existed := files.Exists(path)
	switch {
	case existed:
		data, err := files.Read(path)
		if err != nil {
			run.add(types.ActionResult{Kind: types.ResultMissing, Fatal: true, Message: err.Error()})
			return run.out
		}
		content = string(data)
	case fe.ErrorPolicy == FileSkip:
		run.add(types.ActionResult{Kind: types.ResultSkipped, Message: "file not found, skipped"})
		return run.out
	case fe.ErrorPolicy == FileIgnore:
		logger.Debug().Msg("Target missing, starting from empty content")
	default:
		run.add(types.ActionResult{Kind: types.ResultMissing, Fatal: true, Message: "file not found"})
		return run.out
	}
	original := content
	run.add(types.ActionResult{Kind: types.ResultOpened})

	ops := fe.Operations
	if opts.Reverse {
		ops = make([]EditOperation, len(fe.Operations))
		for i, op := range fe.Operations {
			ops[len(ops)-1-i] = op
		}
	}

	for _, op := range ops {
		content = e.applyOperation(run, op, content, opts.Reverse)
	}

	if run.failed {
		logger.Warn().Str("theme", theme).Msg("File edit failed, leaving file untouched")
		return run.out
	}

	if !files.Writable(path) {
		run.add(types.ActionResult{Kind: types.ResultChmodNeeded, Message: "file is not writable"})
	}

	if content != original || !existed {
		if err := files.Write(path, []byte(content)); err != nil {
			run.fail(EditOperation{}, "", "write: "+err.Error())
			return run.out
		}
	}
	run.add(types.ActionResult{Kind: types.ResultSaved, Message: logging.Size(len(content))})
	return run.out
}

// applyOperation runs a single operation and returns the new content
func (e *Engine) applyOperation(run *fileRun, op EditOperation, content string, reverse bool) string {
	if reverse && op.ErrorPolicy == PolicyRequiredAbsent {
		run.add(types.ActionResult{
			Kind:     types.ResultSkipped,
			Position: string(op.Position),
			Search:   op.Search,
			Message:  "absence check not reversed",
		})
		return content
	}

	c, err := compile(op, reverse)
	if err != nil {
		run.fail(op, "", err.Error())
		return content
	}

	found, err := c.find(content)
	if err != nil {
		run.fail(op, c.pattern, err.Error())
		return content
	}

	if op.ErrorPolicy == PolicyRequiredAbsent {
		if found {
			run.fail(op, c.pattern, "search text must not be present")
		}
		return content
	}

	if !found {
		if op.ErrorPolicy == PolicyIgnore {
			run.add(types.ActionResult{
				Kind:     types.ResultFailed,
				Position: string(op.Position),
				Search:   op.Search,
				Replace:  op.Replace,
				Pattern:  c.pattern,
				Message:  "search text not found, ignored",
			})
			return content
		}
		run.fail(op, c.pattern, "search text not found")
		return content
	}

	updated, err := c.apply(content)
	if err != nil {
		run.fail(op, c.pattern, err.Error())
		return content
	}

	search, replace := op.Search, op.Replace
	if reverse {
		search, replace = replace, search
	}
	run.add(types.ActionResult{
		Kind:     types.ResultReplaced,
		Position: string(op.Position),
		Search:   search,
		Replace:  replace,
		Pattern:  c.pattern,
	})
	return updated
}
