package install

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/arthur-debert/modman/pkg/versions"
)

// action runs one manifest action, recording its results and the steps
// that undo it.
func (r *run) action(a manifest.Action) {
	switch a := a.(type) {
	case *manifest.Modification:
		r.modification(a)
	case *manifest.Code:
		r.deferred(manifest.KindCode, a.Content)
	case *manifest.Database:
		r.deferred(manifest.KindDatabase, a.Content)
	case *manifest.Redirect:
		r.outcome.Redirect = a
		r.result(types.ResultResult, a.Kind(), "", "redirect to "+a.URL)
	case *manifest.Hook:
		r.hook(a)
	case *manifest.Credits:
		r.record.Credits = &state.Credits{Title: a.Title, URL: a.URL, License: a.License, Copyright: a.Copyright}
		r.result(types.ResultResult, a.Kind(), "", "credits recorded")
	case *manifest.Requires:
		r.requires(a)
	case *manifest.CreateFile:
		r.create(a.Kind(), a.Destination, a.Name, false)
	case *manifest.CreateDir:
		r.create(a.Kind(), a.Destination, a.Name, true)
	case *manifest.RequireFile:
		r.requireFile(a)
	case *manifest.RequireDir:
		r.requireDir(a)
	case *manifest.MoveFile:
		r.move(a.Kind(), a.From, a.Destination, false)
	case *manifest.MoveDir:
		r.move(a.Kind(), a.From, a.Destination, true)
	case *manifest.RemoveFile:
		r.remove(a.Kind(), a.Name, false)
	case *manifest.RemoveDir:
		r.remove(a.Kind(), a.Name, true)
	case *manifest.Error:
		r.fatal(types.ResultFailed, a.Kind(), "", a.Message)
	case *manifest.Readme:
		if text, ok := r.content(a.Kind(), a.Content); ok {
			r.outcome.Readme, r.outcome.ReadmeBBC = text, a.ParseBBC
		}
	case *manifest.License:
		if text, ok := r.content(a.Kind(), a.Content); ok {
			r.outcome.License = text
		}
	default:
		r.fatal(types.ResultFailed, a.Kind(), "", "unsupported action")
	}
}

// content loads inline text or a package file. A missing file is a fatal
// Missing result.
func (r *run) content(kind manifest.Kind, c manifest.Content) (string, bool) {
	if c.Inline {
		return c.Text, true
	}
	data, ok := r.bundleFile(c.Text)
	if !ok {
		r.fatal(types.ResultMissing, kind, c.Text, "not found in package")
		return "", false
	}
	return string(data), true
}

func (r *run) bundleFile(name string) ([]byte, bool) {
	if r.bundle == nil {
		return nil, false
	}
	return r.bundle.file(name)
}

// deferred reports code and database actions, which are run by the forum
// itself and never executed here.
func (r *run) deferred(kind manifest.Kind, c manifest.Content) {
	name := "inline"
	if !c.Inline {
		name = c.Text
		if _, ok := r.bundleFile(c.Text); !ok {
			r.fatal(types.ResultMissing, kind, c.Text, "not found in package")
			return
		}
	}
	r.result(types.ResultResult, kind, name, "left to the forum to run")
}

func (r *run) modification(a *manifest.Modification) {
	name := "inline"
	if !a.Inline {
		name = a.Text
	}
	text, ok := r.content(a.Kind(), a.Content)
	if !ok {
		return
	}

	script, err := patch.Parse([]byte(text), a.Format)
	if err != nil {
		r.fatal(types.ResultFailed, a.Kind(), name, err.Error())
		return
	}
	forum := r.in.ctx.Forum
	for _, fe := range script.Files {
		if _, err := forum.Contain(fe.Path); err != nil {
			r.fatal(types.ResultFailed, a.Kind(), fe.Path, err.Error())
			return
		}
	}

	r.applyScript(script, a.Reverse)
	if !a.Reverse {
		r.step(state.Step{Kind: state.StepUnpatch, Path: name, Script: text, Format: string(script.Format)})
	}
}

// applyScript runs the patch engine against the stage. The engine always
// writes to the stage so later actions see earlier edits; dry runs are
// discarded at the end instead.
func (r *run) applyScript(script *patch.Script, reverse bool) {
	forum := r.in.ctx.Forum
	res := r.in.engine.Apply(script, r.stage, patch.Options{
		Reverse:         reverse,
		Themes:          r.in.ctx.Themes,
		DefaultThemeDir: forum.Dir(paths.ThemeDir),
		Resolve:         forum.Resolve,
	})
	for i := range res {
		res[i].Action = string(manifest.KindModification)
		if res[i].Theme != "" {
			r.themes[res[i].Theme] = true
		}
	}
	r.add(res...)
}

func (r *run) hook(a *manifest.Hook) {
	h := state.Hook{Name: a.Hook, Function: a.Function, File: a.File, Object: a.Object}
	if a.Reverse {
		r.record.Hooks = removeHook(r.record.Hooks, h)
		r.result(types.ResultResult, a.Kind(), a.Hook, "hook removed: "+a.Function)
		return
	}
	if !hasHook(r.record.Hooks, h) {
		r.record.Hooks = append(r.record.Hooks, h)
	}
	r.step(state.Step{Kind: state.StepUnhook, Path: a.Hook, To: a.Function})
	r.result(types.ResultResult, a.Kind(), a.Hook, "hook added: "+a.Function)
}

func hasHook(hooks []state.Hook, h state.Hook) bool {
	for _, x := range hooks {
		if x.Name == h.Name && x.Function == h.Function {
			return true
		}
	}
	return false
}

func removeHook(hooks []state.Hook, h state.Hook) []state.Hook {
	out := hooks[:0:0]
	for _, x := range hooks {
		if x.Name != h.Name || x.Function != h.Function {
			out = append(out, x)
		}
	}
	return out
}

func (r *run) requires(a *manifest.Requires) {
	rec, err := r.in.ctx.State.Get(a.ID)
	if err != nil {
		r.fatal(types.ResultFailed, a.Kind(), a.ID, "required package is not installed")
		return
	}
	if a.Version != "" && !versions.Matches(rec.Version, a.Version) {
		r.fatal(types.ResultFailed, a.Kind(), a.ID,
			fmt.Sprintf("installed version %s does not satisfy %s", rec.Version, a.Version))
		return
	}
	r.result(types.ResultResult, a.Kind(), a.ID, "found "+rec.Version)
}

// target resolves a destination directory joined with a name, failing the
// action when it leaves the forum root.
func (r *run) target(kind manifest.Kind, dir, name string) (string, bool) {
	p := name
	if dir != "" {
		p = strings.TrimSuffix(dir, "/") + "/" + name
	}
	resolved, err := r.in.ctx.Forum.Contain(p)
	if err != nil {
		r.fatal(types.ResultFailed, kind, p, err.Error())
		return "", false
	}
	return resolved, true
}

// writable adds a chmod notice when committing path will need its
// permissions changed first.
func (r *run) writable(kind manifest.Kind, p string) {
	if !r.stage.Writable(p) {
		r.result(types.ResultChmodNeeded, kind, p, "not writable yet")
	}
}

func (r *run) create(kind manifest.Kind, dest, name string, dir bool) {
	p, ok := r.target(kind, dest, name)
	if !ok {
		return
	}
	if r.stage.Exists(p) {
		r.result(types.ResultSkipped, kind, p, "already exists")
		return
	}
	r.writable(kind, p)

	var err error
	if dir {
		err = r.stage.Mkdir(p)
	} else {
		err = r.stage.Write(p, nil)
	}
	if err != nil {
		r.fatal(types.ResultFailed, kind, p, err.Error())
		return
	}
	r.step(state.Step{Kind: state.StepRemove, Path: p})
	r.result(types.ResultSaved, kind, p, "created")
}

func (r *run) requireFile(a *manifest.RequireFile) {
	data, ok := r.bundleFile(a.Name)
	if !ok {
		r.fatal(types.ResultMissing, a.Kind(), a.Name, "not found in package")
		return
	}
	p, ok := r.target(a.Kind(), a.Destination, path.Base(cleanRel(a.Name)))
	if !ok {
		return
	}
	existed := r.stage.Exists(p)
	r.writable(a.Kind(), p)
	if err := r.stage.Write(p, data); err != nil {
		r.fatal(types.ResultFailed, a.Kind(), p, err.Error())
		return
	}
	if !existed {
		r.step(state.Step{Kind: state.StepRemove, Path: p})
	}
	r.result(types.ResultSaved, a.Kind(), p, "copied from "+a.Name)
}

func (r *run) requireDir(a *manifest.RequireDir) {
	if r.bundle == nil || !r.bundle.isDir(a.Name) {
		r.fatal(types.ResultMissing, a.Kind(), a.Name, "not found in package")
		return
	}
	root, ok := r.target(a.Kind(), a.Destination, path.Base(cleanRel(a.Name)))
	if !ok {
		return
	}

	existed := r.stage.Exists(root)
	r.writable(a.Kind(), root)
	if err := r.stage.Mkdir(root); err != nil {
		r.fatal(types.ResultFailed, a.Kind(), root, err.Error())
		return
	}

	var added []string
	for _, e := range r.bundle.tree(a.Name) {
		p := filepath.Join(root, filepath.FromSlash(e.Path))
		isNew := !r.stage.Exists(p)
		var err error
		if e.IsDir {
			err = r.stage.Mkdir(p)
		} else {
			err = r.stage.Write(p, e.Data)
		}
		if err != nil {
			r.fatal(types.ResultFailed, a.Kind(), p, err.Error())
			return
		}
		if isNew && existed {
			added = append(added, p)
		}
	}

	if !existed {
		r.step(state.Step{Kind: state.StepRemove, Path: root})
	} else {
		// Deepest first so directories are emptied before they go.
		for i := len(added) - 1; i >= 0; i-- {
			r.step(state.Step{Kind: state.StepRemove, Path: added[i]})
		}
	}
	r.result(types.ResultSaved, a.Kind(), root, "copied from "+a.Name)
}

// move renames from to dest. An existing directory destination receives
// the source under its own name; anything else is the new path.
func (r *run) move(kind manifest.Kind, from, dest string, dir bool) {
	src, ok := r.target(kind, "", from)
	if !ok {
		return
	}
	dst, ok := r.target(kind, "", dest)
	if !ok {
		return
	}
	if !r.stage.Exists(src) {
		r.fatal(types.ResultMissing, kind, src, "nothing to move")
		return
	}
	if r.stage.IsDir(src) != dir {
		r.fatal(types.ResultFailed, kind, src, "wrong type for "+string(kind))
		return
	}
	if r.stage.IsDir(dst) {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if r.stage.Exists(dst) {
		r.fatal(types.ResultFailed, kind, dst, "destination exists")
		return
	}

	r.writable(kind, src)
	r.writable(kind, dst)
	if err := r.stage.Rename(src, dst); err != nil {
		r.fatal(types.ResultFailed, kind, src, err.Error())
		return
	}
	r.step(state.Step{Kind: state.StepMove, Path: dst, To: src})
	r.result(types.ResultSaved, kind, src, "moved to "+dst)
}

func (r *run) remove(kind manifest.Kind, name string, dir bool) {
	p, ok := r.target(kind, "", name)
	if !ok {
		return
	}
	if !r.stage.Exists(p) {
		r.result(types.ResultMissing, kind, p, "already gone")
		return
	}
	if r.stage.IsDir(p) != dir {
		r.fatal(types.ResultFailed, kind, p, "wrong type for "+string(kind))
		return
	}
	r.writable(kind, p)
	if err := r.stage.Remove(p); err != nil {
		r.fatal(types.ResultFailed, kind, p, err.Error())
		return
	}
	r.result(types.ResultSaved, kind, p, "removed")
}
