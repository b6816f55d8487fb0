// Package xmldoc is a small path oriented view over an etree document, used
// to read package manifests and modification scripts.
//
// Paths are slash separated element names relative to the current node,
// optionally ending in "@attr" to address an attribute:
//
//	doc.Fetch("id")               // text of <id>
//	doc.Fetch("install@for")      // attribute for of <install>
//	doc.Path("file")              // every <file> child
//	doc.Exists("file/operation")  // any <operation> below a <file>
//
// "." addresses the node itself.
package xmldoc

import (
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/beevik/etree"
)

// Doc is one element of a parsed document
type Doc struct {
	el  *etree.Element
	doc *etree.Document
}

// Parse reads an XML document and returns its root element
func Parse(data []byte) (*Doc, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidInput, "parse xml")
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New(errors.ErrInvalidInput, "xml document has no root element")
	}
	return &Doc{el: root, doc: doc}, nil
}

// New creates an empty document whose root element is named root
func New(root string) *Doc {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	return &Doc{el: doc.CreateElement(root), doc: doc}
}

// Name returns the element name
func (d *Doc) Name() string { return d.el.Tag }

// split separates the element path from a trailing attribute name
func split(p string) (elems []string, attr string) {
	if i := strings.LastIndex(p, "@"); i >= 0 {
		p, attr = p[:i], p[i+1:]
	}
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			elems = append(elems, seg)
		}
	}
	return elems, attr
}

func (d *Doc) find(elems []string) []*etree.Element {
	current := []*etree.Element{d.el}
	for _, name := range elems {
		var next []*etree.Element
		for _, el := range current {
			next = append(next, el.SelectElements(name)...)
		}
		current = next
	}
	return current
}

// Path returns every element addressed by p, in document order
func (d *Doc) Path(p string) []*Doc {
	elems, _ := split(p)
	found := d.find(elems)
	out := make([]*Doc, 0, len(found))
	for _, el := range found {
		out = append(out, &Doc{el: el, doc: d.doc})
	}
	return out
}

// Children returns the child elements in document order
func (d *Doc) Children() []*Doc {
	var out []*Doc
	for _, el := range d.el.ChildElements() {
		out = append(out, &Doc{el: el, doc: d.doc})
	}
	return out
}

// Exists reports whether p addresses at least one element, or, with an
// "@attr" suffix, an element carrying that attribute.
func (d *Doc) Exists(p string) bool {
	elems, attr := split(p)
	for _, el := range d.find(elems) {
		if attr == "" || el.SelectAttr(attr) != nil {
			return true
		}
	}
	return false
}

// Fetch returns the text or attribute value addressed by p, or "" when
// nothing matches. When the element holds CDATA sections their content is
// returned and the surrounding whitespace is dropped.
func (d *Doc) Fetch(p string) string {
	elems, attr := split(p)
	found := d.find(elems)
	if len(found) == 0 {
		return ""
	}
	if attr != "" {
		return found[0].SelectAttrValue(attr, "")
	}
	return text(found[0])
}

// text concatenates the character data directly inside el
func text(el *etree.Element) string {
	var plain, cdata strings.Builder
	hasCData := false
	for _, tok := range el.Child {
		cd, ok := tok.(*etree.CharData)
		if !ok {
			continue
		}
		if cd.IsCData() {
			hasCData = true
			cdata.WriteString(cd.Data)
			continue
		}
		plain.WriteString(cd.Data)
	}
	if hasCData {
		return cdata.String()
	}
	return plain.String()
}

// Set stores value at p, creating missing elements along the way. With an
// "@attr" suffix the attribute is set, otherwise the element text is
// replaced; text containing markup characters is written as CDATA.
func (d *Doc) Set(p, value string) *Doc {
	elems, attr := split(p)
	el := d.el
	for _, name := range elems {
		child := el.SelectElement(name)
		if child == nil {
			child = el.CreateElement(name)
		}
		el = child
	}

	if attr != "" {
		el.CreateAttr(attr, value)
		return &Doc{el: el, doc: d.doc}
	}

	for _, tok := range append([]etree.Token(nil), el.Child...) {
		if _, ok := tok.(*etree.CharData); ok {
			el.RemoveChild(tok)
		}
	}
	if strings.ContainsAny(value, "<>&\n") {
		el.CreateCData(value)
	} else {
		el.CreateText(value)
	}
	return &Doc{el: el, doc: d.doc}
}

// Append adds a new child element named name and returns it
func (d *Doc) Append(name string) *Doc {
	return &Doc{el: d.el.CreateElement(name), doc: d.doc}
}

// Bytes serializes the whole document the node belongs to
func (d *Doc) Bytes() ([]byte, error) {
	d.doc.Indent(1)
	out, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "serialize xml")
	}
	return out, nil
}
