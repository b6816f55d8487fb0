package install

import (
	"context"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
)

const kindRollback manifest.Kind = "rollback"

// Uninstall removes an installed package. The package's uninstall block
// is used when the package it was installed from is still available and
// unchanged; otherwise the stored rollback steps are replayed in reverse.
func (in *Installer) Uninstall(ctx context.Context, id string) (*Outcome, error) {
	done := logging.LogOperationStart(in.logger, "install.uninstall")
	defer done()

	rec, err := in.ctx.State.Get(id)
	if err != nil {
		return nil, err
	}

	b := in.reopen(ctx, rec)
	r := in.newRun(ctx, b, manifest.PhaseUninstall)
	r.record = rec

	var block *manifest.Block
	if b != nil {
		block, err = manifest.Select(b.info, manifest.PhaseUninstall, in.ctx.HostVersion, rec.Version)
		if err != nil {
			in.logger.Info().Err(err).Str("package", id).Msg("No usable uninstall block, replaying rollback")
		}
	}

	if block != nil {
		if err := r.execute(block.Actions); err != nil {
			r.stage.Discard()
			return nil, err
		}
	} else {
		if r.outcome.Package == nil {
			r.outcome.Package = &manifest.PackageInfo{ID: rec.ID, Name: rec.Name, Version: rec.Version, Type: rec.Type}
		}
		if err := r.replay(rec.Rollback); err != nil {
			r.stage.Discard()
			return nil, err
		}
	}

	err = r.finish(func() error { return in.ctx.State.Remove(id) })
	// Uninstalls never record themes or rollback steps of their own.
	r.outcome.Rollback = nil
	return r.outcome, err
}

// reopen loads the package a record was installed from, or nil when it
// is gone or no longer matches.
func (in *Installer) reopen(ctx context.Context, rec *state.Record) *bundle {
	if rec.Source == "" || in.ctx.Source == nil {
		return nil
	}
	logger := logging.ForPackage(in.logger, rec.ID, rec.Version).With().Str("source", rec.Source).Logger()

	pkg, err := in.ctx.Source.Fetch(ctx, rec.Source)
	if err != nil {
		logger.Debug().Err(err).Msg("Package source unavailable")
		return nil
	}
	if rec.Digest != "" && pkg.Digest != "" && pkg.Digest != rec.Digest {
		logger.Warn().Msg("Package source changed since install")
		return nil
	}
	b, err := openBundle(in.ctx.FS, pkg)
	if err != nil || b.info.ID != rec.ID {
		logger.Debug().Err(err).Msg("Package source does not hold the installed package")
		return nil
	}
	return b
}

// replay undoes rollback steps, last first
func (r *run) replay(steps []state.Step) error {
	for i := len(steps) - 1; i >= 0; i-- {
		if err := r.ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrInstallFailed, "uninstall cancelled")
		}
		s := steps[i]
		switch s.Kind {
		case state.StepRemove:
			if !r.stage.Exists(s.Path) {
				r.result(types.ResultSkipped, kindRollback, s.Path, "already gone")
				continue
			}
			r.writable(kindRollback, s.Path)
			if err := r.stage.Remove(s.Path); err != nil {
				r.fatal(types.ResultFailed, kindRollback, s.Path, err.Error())
				continue
			}
			r.result(types.ResultSaved, kindRollback, s.Path, "removed")
		case state.StepMove:
			if !r.stage.Exists(s.Path) {
				r.result(types.ResultMissing, kindRollback, s.Path, "nothing to move back")
				continue
			}
			r.writable(kindRollback, s.Path)
			r.writable(kindRollback, s.To)
			if err := r.stage.Rename(s.Path, s.To); err != nil {
				r.fatal(types.ResultFailed, kindRollback, s.Path, err.Error())
				continue
			}
			r.result(types.ResultSaved, kindRollback, s.Path, "moved back to "+s.To)
		case state.StepUnpatch:
			script, err := patch.Parse([]byte(s.Script), patch.Format(s.Format))
			if err != nil {
				r.fatal(types.ResultFailed, kindRollback, s.Path, err.Error())
				continue
			}
			r.applyScript(script, true)
		case state.StepUnhook:
			r.record.Hooks = removeHook(r.record.Hooks, state.Hook{Name: s.Path, Function: s.To})
			r.result(types.ResultResult, kindRollback, s.Path, "hook removed: "+s.To)
		default:
			r.fatal(types.ResultFailed, kindRollback, s.Path, "unknown rollback step "+string(s.Kind))
		}
	}
	return nil
}
