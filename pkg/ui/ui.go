// Package ui renders command results in different formats: rich terminal
// output, plain text, JSON and YAML.
package ui

import (
	"io"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/ui/display"
	"github.com/arthur-debert/modman/pkg/ui/json"
	"github.com/arthur-debert/modman/pkg/ui/terminal"
	"github.com/arthur-debert/modman/pkg/ui/text"
	"github.com/arthur-debert/modman/pkg/ui/yaml"
)

// Renderer is the common interface for all output renderers
type Renderer interface {
	// RenderReport renders a command report
	RenderReport(report *display.Report) error

	// RenderError renders an error with appropriate formatting
	RenderError(err error) error

	// RenderMessage renders a simple message
	RenderMessage(msg string) error
}

// NewRenderer creates a renderer for format; FormatAuto is resolved
// against output with DetectFormat.
func NewRenderer(format Format, output io.Writer) (Renderer, error) {
	switch format {
	case FormatAuto:
		return NewRenderer(DetectFormat(output), output)
	case FormatTerminal:
		return terminal.New(output), nil
	case FormatText:
		return text.New(output), nil
	case FormatJSON:
		return json.New(output), nil
	case FormatYAML:
		return yaml.New(output), nil
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown format: %v", format)
	}
}
