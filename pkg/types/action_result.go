package types

// ResultKind classifies one entry of the install audit trail
type ResultKind string

const (
	ResultOpened      ResultKind = "opened"
	ResultReplaced    ResultKind = "replaced"
	ResultFailed      ResultKind = "failed"
	ResultMissing     ResultKind = "missing"
	ResultSkipped     ResultKind = "skipped"
	ResultSaved       ResultKind = "saved"
	ResultChmodNeeded ResultKind = "chmod"
	ResultResult      ResultKind = "result"
)

// ActionResult is one append-only log entry describing what happened for
// an edit operation or a manifest action.
type ActionResult struct {
	Kind ResultKind `yaml:"kind" toml:"kind"`

	// Action is the manifest action kind that produced the entry, if any
	Action string `yaml:"action,omitempty" toml:"action,omitempty"`

	Path  string `yaml:"path,omitempty" toml:"path,omitempty"`
	Theme string `yaml:"theme,omitempty" toml:"theme,omitempty"`

	// Position, Search and Replace carry the human-authored operation text;
	// Pattern is the regex actually used.
	Position string `yaml:"position,omitempty" toml:"position,omitempty"`
	Search   string `yaml:"search,omitempty" toml:"search,omitempty"`
	Replace  string `yaml:"replace,omitempty" toml:"replace,omitempty"`
	Pattern  string `yaml:"pattern,omitempty" toml:"pattern,omitempty"`

	// Fatal marks failures that make the whole install unsuccessful
	Fatal   bool   `yaml:"fatal,omitempty" toml:"fatal,omitempty"`
	Message string `yaml:"message,omitempty" toml:"message,omitempty"`
}

// IsFatal reports whether the entry is a failure governed by a fatal policy
func (r ActionResult) IsFatal() bool {
	return r.Fatal && (r.Kind == ResultFailed || r.Kind == ResultMissing)
}

// Results is the ordered audit trail of one run
type Results []ActionResult

// Failed reports whether any entry is a fatal failure
func (rs Results) Failed() bool {
	for _, r := range rs {
		if r.IsFatal() {
			return true
		}
	}
	return false
}

// Count returns how many entries have the given kind
func (rs Results) Count(kind ResultKind) int {
	n := 0
	for _, r := range rs {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Kinds returns the kind sequence, useful for comparing runs
func (rs Results) Kinds() []ResultKind {
	kinds := make([]ResultKind, len(rs))
	for i, r := range rs {
		kinds[i] = r.Kind
	}
	return kinds
}

// Paths returns the distinct paths in first-seen order
func (rs Results) Paths(kind ResultKind) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs {
		if r.Kind != kind || r.Path == "" || seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r.Path)
	}
	return out
}
