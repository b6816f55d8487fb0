// Package text provides plain text output without any styling
package text

import (
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/modman/pkg/ui/display"
)

// Renderer provides plain text output without colors or styling
type Renderer struct {
	output io.Writer
}

// New creates a new text renderer
func New(output io.Writer) *Renderer {
	return &Renderer{output: output}
}

// Header formats the first line of a report
func Header(r *display.Report) string {
	if r.Package == nil {
		return r.Command
	}
	p := r.Package
	head := fmt.Sprintf("%s: %s %s (%s)", r.Command, p.Name, p.Version, p.ID)
	if p.Phase != "" && p.Phase != r.Command {
		head += " [" + p.Phase + "]"
	}
	return head
}

// Row formats one line without the status column
func Row(l display.Line) string {
	parts := make([]string, 0, 4)
	if l.Action != "" {
		parts = append(parts, l.Action)
	}
	if l.Path != "" {
		path := l.Path
		if l.Theme != "" {
			path += " (" + l.Theme + ")"
		}
		parts = append(parts, path)
	}
	if l.Detail != "" {
		parts = append(parts, l.Detail)
	}
	return strings.Join(parts, "  ")
}

// RenderReport renders a report as plain text
func (r *Renderer) RenderReport(report *display.Report) error {
	var b strings.Builder
	b.WriteString(Header(report) + "\n")
	if report.DryRun {
		b.WriteString("DRY RUN\n")
	}

	for _, s := range report.Sections {
		fmt.Fprintf(&b, "\n%s\n", s.Title)
		for _, l := range s.Lines {
			fmt.Fprintf(&b, "  %-9s %s\n", l.Status, Row(l))
		}
	}

	if report.Readme != "" {
		fmt.Fprintf(&b, "\nReadme\n%s\n", strings.TrimSpace(report.Readme))
	}
	if report.License != "" {
		fmt.Fprintf(&b, "\nLicense\n%s\n", strings.TrimSpace(report.License))
	}
	if report.Redirect != "" {
		fmt.Fprintf(&b, "\nContinue at %s\n", report.Redirect)
	}
	if report.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", report.Message)
	}

	_, err := io.WriteString(r.output, b.String())
	return err
}

// RenderError renders an error as plain text
func (r *Renderer) RenderError(err error) error {
	_, werr := fmt.Fprintf(r.output, "Error: %v\n", err)
	return werr
}

// RenderMessage renders a simple message
func (r *Renderer) RenderMessage(msg string) error {
	_, err := fmt.Fprintln(r.output, msg)
	return err
}
