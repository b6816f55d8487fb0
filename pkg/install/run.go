package install

import (
	"context"
	"sort"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/stage"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
)

// run is the state of one block execution
type run struct {
	in       *Installer
	ctx      context.Context
	stage    *stage.Stage
	bundle   *bundle
	record   *state.Record
	rollback []state.Step
	themes   map[string]bool
	outcome  *Outcome
}

func (in *Installer) newRun(ctx context.Context, b *bundle, phase manifest.Phase) *run {
	o := &Outcome{Phase: phase, DryRun: in.ctx.DryRun}
	if b != nil {
		o.Package = b.info
	}
	return &run{
		in:      in,
		ctx:     ctx,
		stage:   in.newStage(),
		bundle:  b,
		themes:  make(map[string]bool),
		outcome: o,
	}
}

func (r *run) add(res ...types.ActionResult) {
	r.outcome.Results = append(r.outcome.Results, res...)
}

func (r *run) result(kind types.ResultKind, action manifest.Kind, path, msg string) {
	r.add(types.ActionResult{Kind: kind, Action: string(action), Path: path, Message: msg})
}

func (r *run) fatal(kind types.ResultKind, action manifest.Kind, path, msg string) {
	r.add(types.ActionResult{Kind: kind, Action: string(action), Path: path, Message: msg, Fatal: true})
}

func (r *run) step(s state.Step) {
	r.rollback = append(r.rollback, s)
}

// execute runs actions in order. A cancelled context stops the run with
// an error; action failures are recorded in the results instead.
func (r *run) execute(actions []manifest.Action) error {
	for _, a := range actions {
		if err := r.ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrInstallFailed, "install cancelled")
		}
		r.in.logger.Debug().Str("action", string(a.Kind())).Msg("Running action")
		r.action(a)
	}
	return nil
}

// finish commits the stage unless the run is a dry run or failed, then
// calls save. Failed and dry runs are discarded.
func (r *run) finish(save func() error) error {
	o := r.outcome
	o.Failed = o.Results.Failed()
	o.Rollback = r.rollback

	if r.record != nil {
		r.record.Themes = sortedKeys(r.themes)
	}

	if o.DryRun || o.Failed {
		r.in.logger.Info().
			Bool("dry_run", o.DryRun).
			Bool("failed", o.Failed).
			Strs("pending", r.stage.Pending()).
			Msg("Discarding staged changes")
		r.stage.Discard()
		return nil
	}

	report, err := r.stage.Commit()
	if err != nil {
		o.Failed = true
		for _, p := range blockedPaths(err) {
			r.result(types.ResultChmodNeeded, "", p, "not writable")
		}
		return err
	}
	o.Commit = report
	return save()
}

func blockedPaths(err error) []string {
	if !errors.IsErrorCode(err, errors.ErrPermission) {
		return nil
	}
	paths, _ := errors.GetErrorDetails(err)["paths"].([]string)
	return paths
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
