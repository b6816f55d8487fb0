package patch

import (
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/xmldoc"
)

// ParseXML reads a <modification> document:
//
//	<modification>
//	  <id>author:mod</id>
//	  <file name="$sourcedir/Load.php" error="skip">
//	    <operation error="ignore">
//	      <search position="after" regexp="false" whitespace="loose">...</search>
//	      <add>...</add>
//	    </operation>
//	  </file>
//	</modification>
//
// An operation with several <search> elements yields one EditOperation per
// search, all sharing the same <add> text.
func ParseXML(data []byte) (*Script, error) {
	doc, err := xmldoc.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrScriptInvalid, "modification script is not valid xml")
	}
	if doc.Name() != "modification" {
		return nil, errors.Newf(errors.ErrScriptInvalid, "unexpected root element <%s>", doc.Name())
	}

	script := &Script{
		ID:      strings.TrimSpace(doc.Fetch("id")),
		Version: strings.TrimSpace(doc.Fetch("version")),
		Format:  FormatXML,
	}

	for _, file := range doc.Path("file") {
		name := strings.TrimSpace(file.Fetch("@name"))
		if name == "" {
			return nil, errors.New(errors.ErrScriptInvalid, "<file> without a name")
		}
		policy, err := parseFilePolicy(file.Fetch("@error"))
		if err != nil {
			return nil, err
		}

		edit := FileEdit{Path: name, ErrorPolicy: policy, CustomTheme: isThemePath(name)}
		for _, op := range file.Path("operation") {
			ops, err := parseXMLOperation(op)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrScriptInvalid, "file %s", name)
			}
			edit.Operations = append(edit.Operations, ops...)
		}
		script.Files = append(script.Files, edit)
	}

	return script, nil
}

func parseXMLOperation(op *xmldoc.Doc) ([]EditOperation, error) {
	policy, err := parseOpPolicy(op.Fetch("@error"))
	if err != nil {
		return nil, err
	}
	add := op.Fetch("add")

	searches := op.Path("search")
	if len(searches) == 0 {
		return nil, errors.New(errors.ErrScriptInvalid, "<operation> without <search>")
	}

	ops := make([]EditOperation, 0, len(searches))
	for _, s := range searches {
		pos, err := parsePosition(s.Fetch("@position"))
		if err != nil {
			return nil, err
		}
		ops = append(ops, EditOperation{
			Search:          s.Fetch("."),
			Replace:         add,
			Position:        pos,
			ErrorPolicy:     policy,
			IsRegex:         strings.EqualFold(s.Fetch("@regexp"), "true"),
			LooseWhitespace: strings.EqualFold(s.Fetch("@whitespace"), "loose"),
		})
	}
	return ops, nil
}

// ToXML renders a script in the XML form. Boardmod scripts converted this
// way apply identically to their source.
func ToXML(script *Script) ([]byte, error) {
	doc := xmldoc.New("modification")
	if script.ID != "" {
		doc.Set("id", script.ID)
	}
	if script.Version != "" {
		doc.Set("version", script.Version)
	}

	for _, fe := range script.Files {
		file := doc.Append("file")
		file.Set("@name", fe.Path)
		if fe.ErrorPolicy != "" && fe.ErrorPolicy != FileFatal {
			file.Set("@error", string(fe.ErrorPolicy))
		}

		for _, op := range fe.Operations {
			el := file.Append("operation")
			if op.ErrorPolicy != "" && op.ErrorPolicy != PolicyFatal {
				el.Set("@error", string(op.ErrorPolicy))
			}
			search := el.Append("search")
			search.Set("@position", string(op.Position))
			if op.IsRegex {
				search.Set("@regexp", "true")
			}
			if op.LooseWhitespace {
				search.Set("@whitespace", "loose")
			}
			search.Set(".", op.Search)
			el.Set("add", op.Replace)
		}
	}
	return doc.Bytes()
}
