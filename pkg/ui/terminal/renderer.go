// Package terminal provides rich terminal output with colors and styling
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/arthur-debert/modman/pkg/ui/display"
	"github.com/arthur-debert/modman/pkg/ui/styles"
	"github.com/arthur-debert/modman/pkg/ui/text"
	"github.com/charmbracelet/glamour"
)

// Renderer renders reports with lipgloss styles and markdown documents
// with glamour.
type Renderer struct {
	output io.Writer
	width  int
}

// New creates a new terminal renderer
func New(w io.Writer) *Renderer {
	return &Renderer{output: w, width: 80}
}

// RenderReport renders a report with styling
func (r *Renderer) RenderReport(report *display.Report) error {
	var b strings.Builder
	b.WriteString(styles.Get("Header").Render(text.Header(report)) + "\n")
	if report.DryRun {
		b.WriteString(styles.Get("DryRunBanner").Render("DRY RUN: nothing will be written") + "\n")
	}

	indent := styles.Get("Indent")
	status := styles.Get("Status")
	for _, s := range report.Sections {
		b.WriteString(styles.Get("Section").Render(s.Title) + "\n")
		for _, l := range s.Lines {
			tag := styles.ForResult(types.ResultKind(l.Status)).Inherit(status).Render(l.Status)
			b.WriteString(indent.Render(tag+" "+r.row(l)) + "\n")
		}
	}

	if report.Readme != "" {
		b.WriteString(styles.Get("Section").Render("Readme") + "\n")
		b.WriteString(r.markdown(report.Readme))
	}
	if report.License != "" {
		b.WriteString(styles.Get("Section").Render("License") + "\n")
		b.WriteString(r.markdown(report.License))
	}
	if report.Redirect != "" {
		b.WriteString("\nContinue at " + styles.Get("Path").Render(report.Redirect) + "\n")
	}
	if report.Message != "" {
		style := styles.Get("Success")
		if report.Failed {
			style = styles.Get("Error")
		}
		b.WriteString("\n" + style.Render(report.Message) + "\n")
	}

	_, err := io.WriteString(r.output, b.String())
	return err
}

func (r *Renderer) row(l display.Line) string {
	parts := make([]string, 0, 3)
	if l.Action != "" {
		parts = append(parts, styles.Get("Muted").Render(l.Action))
	}
	if l.Path != "" {
		path := l.Path
		if l.Theme != "" {
			path += " (" + l.Theme + ")"
		}
		parts = append(parts, styles.Get("Path").Render(path))
	}
	if l.Detail != "" {
		parts = append(parts, l.Detail)
	}
	return strings.Join(parts, "  ")
}

// markdown renders a document with glamour, falling back to the raw text
func (r *Renderer) markdown(doc string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.width),
	)
	if err == nil {
		var out string
		if out, err = renderer.Render(doc); err == nil {
			return out
		}
	}
	logger := logging.GetLogger("ui.terminal")
	logger.Debug().Err(err).Msg("Markdown rendering failed, printing raw text")
	return strings.TrimSpace(doc) + "\n"
}

// RenderError renders an error with appropriate formatting
func (r *Renderer) RenderError(err error) error {
	_, werr := fmt.Fprintf(r.output, "%s %v\n", styles.Get("Error").Render("Error:"), err)
	return werr
}

// RenderMessage renders a simple message
func (r *Renderer) RenderMessage(msg string) error {
	_, err := fmt.Fprintln(r.output, styles.Get("Info").Render(msg))
	return err
}
