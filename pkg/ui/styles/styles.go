// Package styles holds the terminal styles, defined in an embedded YAML
// file with adaptive colors for light and dark terminals.
//
// Renderers refer to styles by semantic name:
//
//	styles.Get("Success").Render("saved")
package styles

import (
	_ "embed"
	"fmt"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultStyles []byte

// ColorDef is an adaptive color
type ColorDef struct {
	Light string `yaml:"light"`
	Dark  string `yaml:"dark"`
}

// StyleDef is one named style
type StyleDef struct {
	Bold         bool   `yaml:"bold,omitempty"`
	Italic       bool   `yaml:"italic,omitempty"`
	Underline    bool   `yaml:"underline,omitempty"`
	Foreground   string `yaml:"foreground,omitempty"`
	Background   string `yaml:"background,omitempty"`
	Width        int    `yaml:"width,omitempty"`
	Align        string `yaml:"align,omitempty"`
	MarginBottom int    `yaml:"marginBottom,omitempty"`
	MarginTop    int    `yaml:"marginTop,omitempty"`
	PaddingLeft  int    `yaml:"paddingLeft,omitempty"`
}

// Config is a complete styles file
type Config struct {
	Colors map[string]ColorDef `yaml:"colors"`
	Styles map[string]StyleDef `yaml:"styles"`
}

// Registry maps style names to lipgloss styles
var Registry map[string]lipgloss.Style

func init() {
	if err := Reset(); err != nil {
		panic(fmt.Sprintf("embedded styles: %v", err))
	}
}

// Reset restores the built-in styles
func Reset() error {
	return Load(defaultStyles)
}

// Load replaces the registry with the styles in data
func Load(data []byte) error {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, errors.ErrConfigParse, "failed to parse styles")
	}

	colors := make(map[string]lipgloss.AdaptiveColor, len(cfg.Colors))
	for name, def := range cfg.Colors {
		colors[name] = lipgloss.AdaptiveColor{Light: def.Light, Dark: def.Dark}
	}

	reg := make(map[string]lipgloss.Style, len(cfg.Styles))
	for name, def := range cfg.Styles {
		reg[name] = build(def, colors)
	}
	Registry = reg
	return nil
}

// LoadFile loads a styles file through fsys
func LoadFile(fsys types.FS, path string) error {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "failed to read styles file %s", path)
	}
	return Load(data)
}

func build(def StyleDef, colors map[string]lipgloss.AdaptiveColor) lipgloss.Style {
	style := lipgloss.NewStyle()

	if def.Bold {
		style = style.Bold(true)
	}
	if def.Italic {
		style = style.Italic(true)
	}
	if def.Underline {
		style = style.Underline(true)
	}
	if c, ok := colors[def.Foreground]; ok {
		style = style.Foreground(c)
	}
	if c, ok := colors[def.Background]; ok {
		style = style.Background(c)
	}

	if def.Width > 0 {
		style = style.Width(def.Width)
	}
	switch def.Align {
	case "center":
		style = style.Align(lipgloss.Center)
	case "right":
		style = style.Align(lipgloss.Right)
	case "left":
		style = style.Align(lipgloss.Left)
	}

	if def.MarginBottom > 0 {
		style = style.MarginBottom(def.MarginBottom)
	}
	if def.MarginTop > 0 {
		style = style.MarginTop(def.MarginTop)
	}
	if def.PaddingLeft > 0 {
		style = style.PaddingLeft(def.PaddingLeft)
	}
	return style
}

// Get returns a style by name, or an empty style
func Get(name string) lipgloss.Style {
	if style, ok := Registry[name]; ok {
		return style
	}
	return lipgloss.NewStyle()
}

// ForResult picks the style for a result kind
func ForResult(kind types.ResultKind) lipgloss.Style {
	switch kind {
	case types.ResultSaved, types.ResultOpened:
		return Get("Success")
	case types.ResultReplaced, types.ResultResult:
		return Get("Info")
	case types.ResultFailed:
		return Get("Error")
	case types.ResultMissing, types.ResultChmodNeeded:
		return Get("Warning")
	}
	return Get("Muted")
}
