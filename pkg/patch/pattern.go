package patch

import (
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single pattern evaluation
const MatchTimeout = 5 * time.Second

// matchGroup names the capture that wraps the search for before/after
const matchGroup = "mm"

// compiled is a resolved operation ready to run against file content
type compiled struct {
	re          *regexp2.Regexp
	pattern     string
	replacement string
}

// quote turns literal search text into a pattern. With loose set, every
// run of spaces and tabs matches any other such run.
func quote(text string, loose bool) string {
	if !loose {
		return regexp2.Escape(text)
	}

	var b strings.Builder
	for i := 0; i < len(text); {
		j := i
		for j < len(text) && isBlank(text[j]) {
			j++
		}
		if j > i {
			b.WriteString(`[ \t]+`)
			i = j
			continue
		}
		for j < len(text) && !isBlank(text[j]) {
			j++
		}
		b.WriteString(regexp2.Escape(text[i:j]))
		i = j
	}
	return b.String()
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// literalReplacement escapes text for use as a replacement string
func literalReplacement(text string) string {
	return strings.ReplaceAll(text, "$", "$$")
}

// compile resolves op into a pattern and replacement. On reverse the
// operation is turned into the edit that removes what the forward
// operation inserted.
func compile(op EditOperation, reverse bool) (*compiled, error) {
	switch op.Position {
	case PositionBefore, PositionAfter, PositionReplace, PositionEnd:
	default:
		return nil, errors.Newf(errors.ErrScriptInvalid, "unknown position %q", op.Position)
	}

	var pattern, repl string
	search := op.Search
	if !op.IsRegex {
		search = quote(op.Search, op.LooseWhitespace)
	}
	add := op.Replace
	if !op.IsRegex {
		add = literalReplacement(op.Replace)
	}

	switch {
	case reverse && op.IsRegex && op.Position != PositionEnd:
		return nil, errors.New(errors.ErrScriptInvalid, "regular expression operations cannot be reversed")

	case reverse && op.Position == PositionReplace && op.Replace == "":
		return nil, errors.New(errors.ErrScriptInvalid, "deleted text cannot be restored: nothing marks where it was")

	case reverse:
		inserted := quote(op.Replace, op.LooseWhitespace)
		original := literalReplacement(op.Search)
		switch op.Position {
		case PositionReplace:
			pattern, repl = inserted, original
		case PositionAfter:
			pattern, repl = quote(op.Search, op.LooseWhitespace)+inserted, original
		case PositionBefore:
			pattern, repl = inserted+quote(op.Search, op.LooseWhitespace), original
		case PositionEnd:
			pattern, repl = inserted+`(?=(?:\?>\s*)?\z)`, ""
		}

	default:
		switch op.Position {
		case PositionReplace:
			pattern, repl = search, add
		case PositionAfter:
			pattern, repl = "(?<"+matchGroup+">"+search+")", "${"+matchGroup+"}"+add
		case PositionBefore:
			pattern, repl = "(?<"+matchGroup+">"+search+")", add+"${"+matchGroup+"}"
		case PositionEnd:
			pattern, repl = `(?=\?>\s*\z)|\z`, add
		}
	}

	re, err := regexp2.Compile(pattern, regexp2.Singleline)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrScriptInvalid, "compile pattern %q", pattern)
	}
	re.MatchTimeout = MatchTimeout

	return &compiled{re: re, pattern: pattern, replacement: repl}, nil
}

// find reports whether the pattern matches content
func (c *compiled) find(content string) (bool, error) {
	ok, err := c.re.MatchString(content)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrScriptInvalid, "evaluate pattern %q", c.pattern)
	}
	return ok, nil
}

// apply performs exactly one substitution
func (c *compiled) apply(content string) (string, error) {
	out, err := c.re.Replace(content, c.replacement, -1, 1)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrScriptInvalid, "substitute pattern %q", c.pattern)
	}
	return out, nil
}
