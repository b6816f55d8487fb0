package install

import (
	"context"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/source"
	"github.com/arthur-debert/modman/pkg/stage"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/arthur-debert/modman/pkg/versions"
	"github.com/rs/zerolog"
)

// Context carries everything an install run needs
type Context struct {
	FS     types.FS
	Forum  *paths.Forum
	State  *state.Store
	Source *source.Fetcher

	// HostVersion is the forum version blocks are matched against
	HostVersion string

	// Themes maps custom theme ids to their directories
	Themes map[string]string

	// DryRun executes every action against the stage and reports the
	// results, but never commits.
	DryRun bool

	Fallback     types.PermissionFallback
	BackupSuffix string
}

// Outcome describes one install or uninstall run
type Outcome struct {
	Package *manifest.PackageInfo
	Phase   manifest.Phase
	Results types.Results

	// Failed is set when an action failed fatally or the commit was refused
	Failed   bool
	DryRun   bool
	Rollback []state.Step

	Redirect *manifest.Redirect
	Readme   string
	License  string
	// ReadmeBBC marks a readme written in forum BBCode
	ReadmeBBC bool

	// Commit is nil unless changes were written
	Commit *stage.Report
}

// Installer installs and uninstalls packages
type Installer struct {
	ctx    Context
	engine *patch.Engine
	logger zerolog.Logger
}

// New creates an installer
func New(c Context) *Installer {
	return &Installer{
		ctx:    c,
		engine: patch.NewEngine(),
		logger: logging.GetLogger("install"),
	}
}

func (in *Installer) newStage() *stage.Stage {
	var opts []stage.Option
	if in.ctx.Fallback != nil {
		opts = append(opts, stage.WithFallback(in.ctx.Fallback))
	}
	if in.ctx.BackupSuffix != "" {
		opts = append(opts, stage.WithBackup(in.ctx.BackupSuffix))
	}
	return stage.New(in.ctx.FS, opts...)
}

// Inspect opens a package and returns its manifest without running it
func (in *Installer) Inspect(pkg *source.Package) (*manifest.PackageInfo, error) {
	b, err := openBundle(in.ctx.FS, pkg)
	if err != nil {
		return nil, err
	}
	return b.info, nil
}

// Install runs the install block of pkg, or its upgrade block when an
// older version is installed.
func (in *Installer) Install(ctx context.Context, pkg *source.Package) (*Outcome, error) {
	done := logging.LogOperationStart(in.logger, "install.install")
	defer done()

	b, err := openBundle(in.ctx.FS, pkg)
	if err != nil {
		return nil, err
	}
	info := b.info

	phase, prior, err := in.phase(info)
	if err != nil {
		return nil, err
	}

	priorVersion := ""
	if prior != nil {
		priorVersion = prior.Version
	}
	block, err := manifest.Select(info, phase, in.ctx.HostVersion, priorVersion)
	if err != nil {
		return nil, err
	}

	logger := logging.ForPackage(in.logger, info.ID, info.Version)
	logger.Info().
		Str("phase", string(phase)).
		Bool("dry_run", in.ctx.DryRun).
		Msg("Running package block")

	r := in.newRun(ctx, b, phase)
	r.record = in.newRecord(b, prior)
	if err := r.execute(block.Actions); err != nil {
		r.stage.Discard()
		return nil, err
	}

	if err := r.finish(func() error {
		if prior != nil {
			r.record.Rollback = append(append([]state.Step(nil), prior.Rollback...), r.rollback...)
		} else {
			r.record.Rollback = r.rollback
		}
		return in.ctx.State.Put(r.record)
	}); err != nil {
		return r.outcome, err
	}
	return r.outcome, nil
}

// phase decides between install and upgrade from the stored state
func (in *Installer) phase(info *manifest.PackageInfo) (manifest.Phase, *state.Record, error) {
	prior, err := in.ctx.State.Get(info.ID)
	if errors.IsErrorCode(err, errors.ErrNotInstalled) {
		return manifest.PhaseInstall, nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	switch c := versions.Compare(info.Version, prior.Version); {
	case c == 0:
		return "", nil, errors.Newf(errors.ErrAlreadyInstalled, "%s %s is already installed", info.ID, prior.Version).
			WithDetail("installed", prior.Version)
	case c < 0:
		return "", nil, errors.Newf(errors.ErrNoUpgrade, "%s %s is older than the installed %s", info.ID, info.Version, prior.Version).
			WithDetail("installed", prior.Version)
	}
	if !info.Has(manifest.PhaseUpgrade) {
		return "", nil, errors.Newf(errors.ErrNoUpgrade, "%s has no upgrade path from %s", info.ID, prior.Version).
			WithDetail("installed", prior.Version)
	}
	return manifest.PhaseUpgrade, prior, nil
}

func (in *Installer) newRecord(b *bundle, prior *state.Record) *state.Record {
	rec := &state.Record{}
	if prior != nil {
		*rec = *prior
		rec.Hooks = append([]state.Hook(nil), prior.Hooks...)
	}
	rec.ID = b.info.ID
	rec.Name = b.info.Name
	rec.Version = b.info.Version
	rec.Type = b.info.Type
	rec.Source = b.pkg.Path
	rec.Digest = b.pkg.Digest
	return rec
}
