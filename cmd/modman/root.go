package modman

import (
	"context"
	"net/http"
	"os"

	"github.com/arthur-debert/modman/internal/version"
	"github.com/arthur-debert/modman/pkg/config"
	"github.com/arthur-debert/modman/pkg/filesystem"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/source"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/arthur-debert/modman/pkg/ui"
	"github.com/arthur-debert/modman/pkg/versions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options holds the global flags
type options struct {
	verbosity    int
	dryRun       bool
	configFile   string
	root         string
	output       string
	forumVersion string
	ftp          bool
	backup       bool
	refresh      bool
}

// app is what every command works with once flags and configuration are
// resolved.
type app struct {
	opts     *options
	cfg      *config.Config
	fs       types.FS
	renderer ui.Renderer
}

// NewRootCmd creates the root command and its subcommands
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	opts := &options{}
	a := &app{opts: opts}

	rootCmd := &cobra.Command{
		Use:     "modman",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
			return nil
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	flags.BoolVar(&opts.dryRun, "dry-run", false, MsgFlagDryRun)
	flags.StringVarP(&opts.configFile, "config", "c", "", MsgFlagConfig)
	flags.StringVarP(&opts.root, "root", "r", "", MsgFlagRoot)
	flags.StringVarP(&opts.output, "output", "o", "auto", MsgFlagOutput)
	flags.StringVar(&opts.forumVersion, "forum-version", "", MsgFlagForumVersion)
	flags.BoolVar(&opts.ftp, "ftp", false, MsgFlagFTP)
	flags.BoolVar(&opts.backup, "backup", false, MsgFlagBackup)
	flags.BoolVar(&opts.refresh, "refresh", false, MsgFlagRefresh)

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return ui.FormatNames(), cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddCommand(
		newListCmd(a),
		newExtractCmd(a),
		newInfoCmd(a),
		newInstallCmd(a),
		newUninstallCmd(a),
		newInstalledCmd(a),
		newMatchCmd(a),
		newConvertCmd(a),
		newFTPCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads the configuration and picks the renderer
func (a *app) setup(cmd *cobra.Command) error {
	format, err := ui.ParseFormat(a.opts.output)
	if err != nil {
		return err
	}
	if a.renderer, err = ui.NewRenderer(format, cmd.OutOrStdout()); err != nil {
		return err
	}

	overrides := map[string]interface{}{}
	if a.opts.forumVersion != "" {
		if err := versions.Validate(a.opts.forumVersion); err != nil {
			return err
		}
		overrides["install.emulate_version"] = a.opts.forumVersion
	}
	if a.opts.ftp {
		overrides["ftp.enabled"] = true
	}
	if a.opts.backup {
		overrides["install.backup"] = true
	}

	a.cfg, err = config.Load(config.LoadOptions{
		ForumRoot: a.opts.root,
		File:      a.opts.configFile,
		Overrides: overrides,
	})
	if err != nil {
		return err
	}
	logging.Setup(a.opts.verbosity, logging.Options{
		File:    a.cfg.Log.File,
		NoColor: !a.cfg.Log.Color || os.Getenv("NO_COLOR") != "",
	})
	if a.fs == nil {
		a.fs = filesystem.NewOS()
	}
	return nil
}

// fetcher builds the package fetcher from the source settings
func (a *app) fetcher() *source.Fetcher {
	opts := []source.Option{
		source.WithHTTPClient(&http.Client{Timeout: a.cfg.Source.HTTPTimeout}),
		source.WithRefresh(a.opts.refresh),
	}
	if a.cfg.Source.MaxSize > 0 {
		opts = append(opts, source.WithMaxSize(a.cfg.Source.MaxSize))
	}
	if a.cfg.Source.S3Profile != "" {
		opts = append(opts, source.WithS3Profile(a.cfg.Source.S3Profile))
	}
	return source.NewFetcher(a.fs, a.cfg.Install.CacheDir, opts...)
}

func (a *app) fetch(ctx context.Context, ref string) (*source.Package, error) {
	return a.fetcher().Fetch(ctx, ref)
}

// Execute runs the root command and reports errors through the renderer
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		r, rerr := ui.NewRenderer(ui.FormatAuto, os.Stderr)
		if rerr != nil || r.RenderError(err) != nil {
			_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		}
		return 1
	}
	return 0
}
