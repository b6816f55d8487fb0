package patch

import (
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
)

// Format is the surface syntax a script was written in
type Format string

const (
	FormatXML      Format = "xml"
	FormatBoardMod Format = "boardmod"
)

// Position says where an operation's text goes relative to the match
type Position string

const (
	PositionBefore  Position = "before"
	PositionAfter   Position = "after"
	PositionReplace Position = "replace"
	PositionEnd     Position = "end"
)

// OpPolicy governs what a failed search means for the file edit
type OpPolicy string

const (
	// PolicyFatal: the search must match, otherwise the install fails
	PolicyFatal OpPolicy = "fatal"
	// PolicyIgnore: a missing match is logged and otherwise ignored
	PolicyIgnore OpPolicy = "ignore"
	// PolicyRequiredAbsent: finding the search text is the failure
	PolicyRequiredAbsent OpPolicy = "required"
)

// FilePolicy governs what a missing target file means
type FilePolicy string

const (
	FileFatal  FilePolicy = "fatal"
	FileIgnore FilePolicy = "ignore"
	FileSkip   FilePolicy = "skip"
)

// EditOperation is one search/replace unit
type EditOperation struct {
	Search          string
	Replace         string
	Position        Position
	ErrorPolicy     OpPolicy
	IsRegex         bool
	LooseWhitespace bool
}

// FileEdit is the ordered list of operations for one target file. Path may
// contain directory placeholders such as $sourcedir.
type FileEdit struct {
	Path        string
	ErrorPolicy FilePolicy
	CustomTheme bool
	Operations  []EditOperation
}

// Script is a parsed modification script in either surface syntax
type Script struct {
	ID      string
	Version string
	Format  Format
	Files   []FileEdit
}

// Operations returns the total number of operations in the script
func (s *Script) Operations() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Operations)
	}
	return n
}

func parsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PositionReplace, nil
	case PositionBefore, PositionAfter, PositionReplace, PositionEnd:
		return p, nil
	}
	return "", errors.Newf(errors.ErrScriptInvalid, "unknown search position %q", s)
}

func parseOpPolicy(s string) (OpPolicy, error) {
	switch p := OpPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFatal, nil
	case PolicyFatal, PolicyIgnore, PolicyRequiredAbsent:
		return p, nil
	}
	return "", errors.Newf(errors.ErrScriptInvalid, "unknown operation error policy %q", s)
}

func parseFilePolicy(s string) (FilePolicy, error) {
	switch p := FilePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FileFatal, nil
	case FileFatal, FileIgnore, FileSkip:
		return p, nil
	}
	return "", errors.Newf(errors.ErrScriptInvalid, "unknown file error policy %q", s)
}

// isThemePath reports whether a script path targets the default theme
func isThemePath(path string) bool {
	return strings.HasPrefix(path, "$themedir/") || path == "$themedir"
}

// DetectFormat guesses the surface syntax of a script
func DetectFormat(data []byte) Format {
	head := strings.ToLower(strings.TrimSpace(string(data)))
	if strings.HasPrefix(head, "<?xml") || strings.HasPrefix(head, "<!doctype modification") || strings.HasPrefix(head, "<modification") {
		return FormatXML
	}
	return FormatBoardMod
}

// Parse reads a script in the given format; an empty format is detected
func Parse(data []byte, format Format) (*Script, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	switch format {
	case FormatXML:
		return ParseXML(data)
	case FormatBoardMod:
		return ParseBoardMod(data)
	}
	return nil, errors.Newf(errors.ErrScriptInvalid, "unknown script format %q", format)
}
