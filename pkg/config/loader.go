package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes configuration environment variables. Sections and
// keys are separated by a double underscore: MODMAN_FTP__HOST.
const EnvPrefix = "MODMAN_"

// RootConfigFiles are looked up in the forum root, first found wins
var RootConfigFiles = []string{"modman.toml", ".modman.toml"}

// LoadOptions selects the optional configuration layers
type LoadOptions struct {
	// ForumRoot is where modman.toml is looked up; empty uses
	// forum.root from the earlier layers or discovery.
	ForumRoot string

	// File is an explicit configuration file
	File string

	// Overrides are dotted keys set from command-line flags
	Overrides map[string]interface{}
}

// Load builds the configuration from every layer
func Load(opts LoadOptions) (*Config, error) {
	log := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	// 2. Forum root config
	root := opts.ForumRoot
	if root == "" {
		if r, ok := opts.Overrides["forum.root"].(string); ok && r != "" {
			root = r
		} else if r := os.Getenv(paths.EnvForumRoot); r != "" {
			root = r
		}
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to get current directory")
		}
		var fallback bool
		root, fallback = paths.FindForumRoot(cwd)
		if fallback {
			log.Debug().Str("cwd", cwd).Msg("No Settings.php found, using current directory as forum root")
		}
	}
	root = paths.ExpandHome(root)

	for _, name := range RootConfigFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load root config from %s", path)
			}
			log.Debug().Str("path", path).Msg("Loaded forum config")
			break
		}
	}

	// 3. Explicit file
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", opts.File)
		}
	}

	// 4. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, EnvPrefix)
		if !strings.Contains(key, "__") {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(key), "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
	}

	// 5. Flags
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	postProcess(&cfg, root)
	return &cfg, nil
}

// postProcess fills directories left empty and expands ~
func postProcess(cfg *Config, root string) {
	if cfg.Forum.Root == "" {
		cfg.Forum.Root = root
	}
	cfg.Forum.Root = paths.ExpandHome(cfg.Forum.Root)

	if cfg.Install.StateDir == "" {
		cfg.Install.StateDir = paths.StateDir()
	}
	if cfg.Install.CacheDir == "" {
		cfg.Install.CacheDir = paths.CacheDir()
	}
	if cfg.Log.File != "" && cfg.Log.File != "-" {
		cfg.Log.File = paths.ExpandHome(cfg.Log.File)
	}
	cfg.Install.StateDir = paths.ExpandHome(cfg.Install.StateDir)
	cfg.Install.CacheDir = paths.ExpandHome(cfg.Install.CacheDir)

	if cfg.Themes == nil {
		cfg.Themes = map[string]string{}
	}
	for id, dir := range cfg.Themes {
		if dir != "" && !filepath.IsAbs(dir) {
			cfg.Themes[id] = filepath.Join(cfg.Forum.Root, dir)
		}
	}
}
