// Package display turns domain results into the report structure every
// renderer understands.
package display

import "time"

// Line is one row of a report section
type Line struct {
	// Status is a result kind ("saved", "failed") or a listing tag
	Status string `json:"status" yaml:"status"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Theme  string `json:"theme,omitempty" yaml:"theme,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Fatal  bool   `json:"fatal,omitempty" yaml:"fatal,omitempty"`
}

// Section groups lines under a title
type Section struct {
	Title string `json:"title" yaml:"title"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// Package identifies the package a report is about
type Package struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Phase   string `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// Report is the result of one command
type Report struct {
	Command  string    `json:"command" yaml:"command"`
	Message  string    `json:"message,omitempty" yaml:"message,omitempty"`
	Package  *Package  `json:"package,omitempty" yaml:"package,omitempty"`
	DryRun   bool      `json:"dryRun,omitempty" yaml:"dry_run,omitempty"`
	Failed   bool      `json:"failed,omitempty" yaml:"failed,omitempty"`
	Sections []Section `json:"sections,omitempty" yaml:"sections,omitempty"`

	// Readme and License are markdown; Redirect is where the forum
	// should send the admin afterwards.
	Readme   string `json:"readme,omitempty" yaml:"readme,omitempty"`
	License  string `json:"license,omitempty" yaml:"license,omitempty"`
	Redirect string `json:"redirect,omitempty" yaml:"redirect,omitempty"`

	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewReport starts a report for command
func NewReport(command string) *Report {
	return &Report{Command: command, Timestamp: time.Now()}
}

// Add appends a section, skipping empty ones
func (r *Report) Add(title string, lines []Line) *Report {
	if len(lines) > 0 {
		r.Sections = append(r.Sections, Section{Title: title, Lines: lines})
	}
	return r
}
