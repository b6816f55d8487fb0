package ui

import (
	"io"
	"os"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Format selects a renderer
type Format int

const (
	FormatAuto Format = iota
	FormatTerminal
	FormatText
	FormatJSON
	FormatYAML
)

var formatNames = []struct {
	format  Format
	name    string
	aliases []string
}{
	{FormatAuto, "auto", []string{""}},
	{FormatTerminal, "term", []string{"terminal"}},
	{FormatText, "text", []string{"plain"}},
	{FormatJSON, "json", nil},
	{FormatYAML, "yaml", []string{"yml"}},
}

// FormatNames lists the canonical names accepted by ParseFormat
func FormatNames() []string {
	names := make([]string, len(formatNames))
	for i, f := range formatNames {
		names[i] = f.name
	}
	return names
}

func (f Format) String() string {
	for _, n := range formatNames {
		if n.format == f {
			return n.name
		}
	}
	return "unknown"
}

// ParseFormat parses a format name or alias
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range formatNames {
		if s == n.name {
			return n.format, nil
		}
		for _, alias := range n.aliases {
			if s == alias {
				return n.format, nil
			}
		}
	}
	return FormatAuto, errors.Newf(errors.ErrInvalidInput, "unknown output format: %s", s).
		WithDetail("valid", FormatNames())
}

// DetectFormat resolves FormatAuto for output: styled output only goes to
// a colour terminal, and NO_COLOR always selects plain text.
func DetectFormat(output io.Writer) Format {
	if os.Getenv("NO_COLOR") != "" {
		return FormatText
	}
	file, ok := output.(*os.File)
	if !ok {
		return FormatText
	}
	if !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd()) {
		return FormatText
	}
	if termenv.NewOutput(file).EnvColorProfile() == termenv.Ascii {
		return FormatText
	}
	return FormatTerminal
}
