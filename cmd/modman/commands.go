package modman

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/modman/internal/version"
	"github.com/arthur-debert/modman/pkg/archive"
	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/ftp"
	"github.com/arthur-debert/modman/pkg/install"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/source"
	"github.com/arthur-debert/modman/pkg/stage"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/ui/display"
	"github.com/arthur-debert/modman/pkg/versions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// open extracts pkg in list mode
func (a *app) open(pkg *source.Package, opts archive.Options) (*archive.Result, error) {
	opts.FS = a.fs
	if pkg.Format == archive.FormatDirectory {
		return archive.ExtractDir(pkg.Path, opts)
	}
	return archive.Extract(pkg.Data, opts)
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <package>",
		Short: MsgListShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := a.fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.open(pkg, archive.Options{})
			if err != nil {
				return err
			}
			return a.renderer.RenderReport(display.Archive(args[0], res))
		},
	}
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		single    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "extract <package> [destination]",
		Short: MsgExtractShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := a.fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if single != "" {
				res, err := a.open(pkg, archive.Options{SingleFile: single})
				if err != nil {
					return err
				}
				if !res.Found {
					return errors.Newf(errors.ErrNotFound, "%s holds no member matching %s", args[0], single)
				}
				_, err = cmd.OutOrStdout().Write(res.Data)
				return err
			}

			if len(args) < 2 {
				return errors.New(errors.ErrInvalidInput, "a destination is required unless --file is given")
			}
			dest, err := filepath.Abs(args[1])
			if err != nil {
				return errors.Wrap(err, errors.ErrInvalidInput, "invalid destination")
			}
			res, err := a.open(pkg, archive.Options{Destination: dest, Overwrite: overwrite})
			if err != nil {
				return err
			}
			report := display.Archive(args[0], res)
			report.Command = "extract"
			report.Message = fmt.Sprintf(MsgExtractedFormat, len(res.Written), dest)
			return a.renderer.RenderReport(report)
		},
	}
	cmd.Flags().StringVarP(&single, "file", "f", "", MsgFlagFile)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, MsgFlagOverwrite)
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <package>",
		Short: MsgInfoShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := a.fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			info, err := install.New(install.Context{FS: a.fs}).Inspect(pkg)
			if err != nil {
				return err
			}
			return a.renderer.RenderReport(manifestReport(info, a.cfg.HostVersion()))
		},
	}
}

// manifestReport lists the blocks of a manifest, marking those that
// apply to hostVersion.
func manifestReport(info *manifest.PackageInfo, hostVersion string) *display.Report {
	r := display.NewReport("info")
	r.Package = &display.Package{ID: info.ID, Name: info.Name, Version: info.Version}
	r.Message = "Type: " + info.Type

	for _, b := range info.Blocks {
		title := string(b.Phase)
		if b.From != "" {
			title += " from " + b.From
		}
		if b.For != "" {
			title += " for " + b.For
		}
		if b.For == "" || versions.Matches(hostVersion, b.For) {
			title += " (applies)"
		}

		lines := make([]display.Line, 0, len(b.Actions))
		for _, act := range b.Actions {
			lines = append(lines, display.Line{Status: string(act.Kind()), Path: describe(act)})
		}
		r.Add(title, lines)
	}
	return r
}

func describe(act manifest.Action) string {
	switch v := act.(type) {
	case *manifest.Modification:
		return contentName(v.Content)
	case *manifest.Code:
		return contentName(v.Content)
	case *manifest.Database:
		return contentName(v.Content)
	case *manifest.Hook:
		return v.Hook + " -> " + v.Function
	case *manifest.Requires:
		return strings.TrimSpace(v.ID + " " + v.Version)
	case *manifest.CreateFile:
		return v.Destination + "/" + v.Name
	case *manifest.CreateDir:
		return v.Destination + "/" + v.Name
	case *manifest.RequireFile:
		return v.Name + " -> " + v.Destination
	case *manifest.RequireDir:
		return v.Name + " -> " + v.Destination
	case *manifest.MoveFile:
		return v.From + " -> " + v.Destination
	case *manifest.MoveDir:
		return v.From + " -> " + v.Destination
	case *manifest.RemoveFile:
		return v.Name
	case *manifest.RemoveDir:
		return v.Name
	case *manifest.Redirect:
		return v.URL
	case *manifest.Error:
		return v.Message
	case *manifest.Credits:
		return v.Title
	}
	return ""
}

func contentName(c manifest.Content) string {
	if c.Inline {
		return "(inline)"
	}
	return c.Text
}

// installer wires the configuration into an installer. The returned
// cleanup closes the FTP session, if one was opened.
func (a *app) installer() (*install.Installer, *paths.Forum, func(), error) {
	forum, err := a.cfg.Layout()
	if err != nil {
		return nil, nil, nil, err
	}

	themes := make(map[string]string, len(a.cfg.Themes))
	for id, dir := range a.cfg.Themes {
		themes[id] = forum.Resolve(dir)
	}

	c := install.Context{
		FS:          a.fs,
		Forum:       forum,
		State:       state.NewStore(a.fs, a.cfg.Install.StateDir),
		Source:      a.fetcher(),
		HostVersion: a.cfg.HostVersion(),
		Themes:      themes,
		DryRun:      a.opts.dryRun,
	}
	if a.cfg.Install.Backup {
		c.BackupSuffix = a.cfg.Install.BackupSuffix
	}

	cleanup := func() {}
	if a.cfg.FTP.Enabled && !a.opts.dryRun {
		sess, remote, err := a.dialFTP(forum)
		if err != nil {
			return nil, nil, nil, err
		}
		c.Fallback = stage.NewFTPFallback(sess, a.fs, forum.Root(), remote)
		cleanup = func() { _ = sess.Close() }
	}
	return install.New(c), forum, cleanup, nil
}

// dialFTP logs in and finds the remote forum root, from the configuration
// or by probing the server.
func (a *app) dialFTP(forum *paths.Forum) (*ftp.Session, string, error) {
	sess, err := a.loginFTP()
	if err != nil {
		return nil, "", err
	}
	remote := a.cfg.FTP.Root
	if remote == "" {
		var found bool
		_, remote, found = sess.LocatePath(forum.Root(), filepath.Join(forum.Root(), "Settings.php"))
		log.Info().Str("remote", remote).Bool("confirmed", found).Msg("Located forum on FTP server")
	}
	return sess, remote, nil
}

// loginFTP dials the configured server. A failed login still holds the
// control connection, so it is closed here.
func (a *app) loginFTP() (*ftp.Session, error) {
	f := a.cfg.FTP
	sess, err := ftp.Dial(f.Host, f.Port, f.User, f.Password, ftp.WithTimeout(f.Timeout))
	if err != nil {
		if sess != nil {
			_ = sess.Close()
		}
		return nil, err
	}
	return sess, nil
}

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "install <package>",
		Short:   MsgInstallShort,
		Long:    MsgInstallLong,
		Example: MsgInstallExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := a.fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			in, forum, cleanup, err := a.installer()
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := in.Install(cmd.Context(), pkg)
			if v, ok := manifest.Emulation(err); ok {
				return errors.Wrapf(err, errors.ErrManifestNoMatch, MsgEmulateHint, v, v)
			}
			if out != nil {
				if rerr := a.renderer.RenderReport(display.Outcome("install", forum, out)); rerr != nil {
					return rerr
				}
			}
			if err == nil && out.Failed {
				err = errors.Newf(errors.ErrInstallFailed, "%s was not installed", out.Package.ID)
			}
			return err
		},
	}
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package-id>",
		Short: MsgUninstallShort,
		Long:  MsgUninstallLong,
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			records, err := state.NewStore(a.fs, a.cfg.Install.StateDir).List()
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			return ids, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, forum, cleanup, err := a.installer()
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := in.Uninstall(cmd.Context(), args[0])
			if out != nil {
				if rerr := a.renderer.RenderReport(display.Outcome("uninstall", forum, out)); rerr != nil {
					return rerr
				}
			}
			if err == nil && out.Failed {
				err = errors.Newf(errors.ErrInstallFailed, "%s was not uninstalled", args[0])
			}
			return err
		},
	}
}

func newInstalledCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: MsgInstalledShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.NewStore(a.fs, a.cfg.Install.StateDir)
			records, err := store.List()
			if err != nil {
				return err
			}
			report := display.Records(records)

			hooks, err := store.Hooks()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(hooks))
			for name := range hooks {
				names = append(names, name)
			}
			sort.Strings(names)
			var lines []display.Line
			for _, name := range names {
				for _, h := range hooks[name] {
					lines = append(lines, display.Line{Status: "hook", Action: name, Path: h.Function, Detail: h.File})
				}
			}
			return a.renderer.RenderReport(report.Add("Hooks", lines))
		},
	}
}

func newMatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "match <version> <range>",
		Short: MsgMatchShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := versions.Validate(args[0]); err != nil {
				return err
			}
			if versions.Matches(args[0], args[1]) {
				return a.renderer.RenderMessage(fmt.Sprintf(MsgMatchYes, args[0], args[1]))
			}
			msg := fmt.Sprintf(MsgMatchNo, args[0], args[1])
			if best, ok := versions.HighestSatisfying(args[1], args[0]); ok {
				msg += fmt.Sprintf(" (highest match below: %s)", best)
			}
			return a.renderer.RenderMessage(msg)
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <script.mod>",
		Short: MsgConvertShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.fs.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "read %s", args[0])
			}
			script, err := patch.Parse(data, patch.FormatBoardMod)
			if err != nil {
				return err
			}
			out, err := patch.ToXML(script)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newFTPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ftp-detect",
		Short: MsgFTPShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			forum, err := a.cfg.Layout()
			if err != nil {
				return err
			}
			sess, err := a.loginFTP()
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			user, remote, found := sess.LocatePath(forum.Root(), filepath.Join(forum.Root(), "Settings.php"))
			log.Debug().Str("user", user).Msg("FTP path guess")
			if found {
				return a.renderer.RenderMessage(fmt.Sprintf(MsgFTPLocated, remote))
			}
			return a.renderer.RenderMessage(fmt.Sprintf(MsgFTPGuessed, remote))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
			return err
		},
	}
}
