package patch

import (
	"sort"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
)

// boardmod tag names mapped to their meaning
const (
	tagFile    = "file"
	tagSearch  = "search"
	tagAdd     = "add"
	tagID      = "id"
	tagVersion = "version"
)

var boardModTags = map[string]struct {
	kind     string
	position Position
}{
	"edit file":  {kind: tagFile},
	"file":       {kind: tagFile},
	"search":     {kind: tagSearch},
	"search for": {kind: tagSearch},
	"add":        {kind: tagAdd, position: PositionAfter},
	"add after":  {kind: tagAdd, position: PositionAfter},
	"below":      {kind: tagAdd, position: PositionAfter},
	"add before": {kind: tagAdd, position: PositionBefore},
	"add above":  {kind: tagAdd, position: PositionBefore},
	"above":      {kind: tagAdd, position: PositionBefore},
	"before":     {kind: tagAdd, position: PositionBefore},
	"replace":    {kind: tagAdd, position: PositionReplace},
	"id":         {kind: tagID},
	"version":    {kind: tagVersion},
}

// tagNames holds the known tags, longest first, so "search for" wins over "search"
var tagNames = func() []string {
	names := make([]string, 0, len(boardModTags))
	for n := range boardModTags {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// bmToken is one <tag>body</tag> block of a boardmod script
type bmToken struct {
	tag  string
	body string
	line int
}

// lexBoardMod splits a boardmod script into tagged blocks. Text outside
// known tags is free-form commentary and is dropped.
func lexBoardMod(src string) ([]bmToken, error) {
	lower := asciiLower(src)
	var tokens []bmToken

	for pos := 0; pos < len(src); {
		lt := strings.IndexByte(src[pos:], '<')
		if lt < 0 {
			break
		}
		start := pos + lt

		tag := ""
		for _, name := range tagNames {
			if strings.HasPrefix(lower[start+1:], name+">") {
				tag = name
				break
			}
		}
		if tag == "" {
			pos = start + 1
			continue
		}

		bodyStart := start + len(tag) + 2
		closing := "</" + tag + ">"
		end := strings.Index(lower[bodyStart:], closing)
		if end < 0 {
			return nil, errors.Newf(errors.ErrScriptInvalid, "line %d: <%s> is never closed", lineAt(src, start), tag)
		}

		tokens = append(tokens, bmToken{
			tag:  tag,
			body: trimBlock(src[bodyStart : bodyStart+end]),
			line: lineAt(src, start),
		})
		pos = bodyStart + end + len(closing)
	}
	return tokens, nil
}

// trimBlock drops the single newline that follows an opening tag and the
// one that precedes the closing tag.
func trimBlock(s string) string {
	s = strings.TrimPrefix(s, "\n")
	return strings.TrimSuffix(s, "\n")
}

// asciiLower folds ASCII letters only, keeping byte offsets aligned with src
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func lineAt(src string, off int) int {
	return strings.Count(src[:off], "\n") + 1
}

// ParseBoardMod reads the legacy tag delimited script form:
//
//	<id>author:mod</id>
//	<edit file>
//	$sourcedir/Load.php
//	</edit file>
//	<search for>
//	// MARKER
//	</search for>
//	<add after>
//	echo 1;
//	</add after>
//
// Each add/replace block consumes the pending search of the current file.
func ParseBoardMod(data []byte) (*Script, error) {
	src := strings.ReplaceAll(string(data), "\r\n", "\n")
	tokens, err := lexBoardMod(src)
	if err != nil {
		return nil, err
	}

	script := &Script{Format: FormatBoardMod}
	var current *FileEdit
	var search *bmToken

	flush := func() {
		if current != nil {
			script.Files = append(script.Files, *current)
			current = nil
		}
	}

	for i := range tokens {
		tok := &tokens[i]
		meaning := boardModTags[tok.tag]

		switch meaning.kind {
		case tagID:
			script.ID = strings.TrimSpace(tok.body)
		case tagVersion:
			script.Version = strings.TrimSpace(tok.body)
		case tagFile:
			flush()
			path := strings.TrimSpace(tok.body)
			if path == "" {
				return nil, errors.Newf(errors.ErrScriptInvalid, "line %d: empty file name", tok.line)
			}
			current = &FileEdit{Path: path, ErrorPolicy: FileFatal, CustomTheme: isThemePath(path)}
			search = nil
		case tagSearch:
			if current == nil {
				return nil, errors.Newf(errors.ErrScriptInvalid, "line %d: <%s> before any file", tok.line, tok.tag)
			}
			search = tok
		case tagAdd:
			if current == nil || search == nil {
				return nil, errors.Newf(errors.ErrScriptInvalid, "line %d: <%s> without a preceding search", tok.line, tok.tag)
			}
			current.Operations = append(current.Operations, EditOperation{
				Search:      search.body,
				Replace:     tok.body,
				Position:    meaning.position,
				ErrorPolicy: PolicyFatal,
			})
			search = nil
		}
	}
	flush()

	if len(script.Files) == 0 {
		return nil, errors.New(errors.ErrScriptInvalid, "boardmod script edits no files")
	}
	return script, nil
}
