package manifest

import (
	"strconv"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/patch"
	"github.com/arthur-debert/modman/pkg/xmldoc"
)

// FileName is the manifest's name inside a package
const FileName = "package-info.xml"

// Phase selects a block
type Phase string

const (
	PhaseInstall   Phase = "install"
	PhaseUpgrade   Phase = "upgrade"
	PhaseUninstall Phase = "uninstall"
)

// Block is one install, upgrade or uninstall element
type Block struct {
	Phase Phase
	// For is the host version spec; empty means any version
	For string
	// From is the installed version spec of an upgrade block
	From    string
	Actions []Action
}

// PackageInfo is a parsed manifest
type PackageInfo struct {
	ID      string
	Name    string
	Version string
	Type    string
	Blocks  []Block
}

// Has reports whether the manifest carries any block for phase
func (p *PackageInfo) Has(phase Phase) bool {
	for _, b := range p.Blocks {
		if b.Phase == phase {
			return true
		}
	}
	return false
}

// Parse reads package-info.xml
func Parse(data []byte) (*PackageInfo, error) {
	doc, err := xmldoc.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestInvalid, "read package-info.xml")
	}
	if doc.Name() != "package-info" {
		return nil, errors.Newf(errors.ErrManifestInvalid, "root element is <%s>, want <package-info>", doc.Name())
	}

	info := &PackageInfo{
		ID:      strings.TrimSpace(doc.Fetch("id")),
		Name:    strings.TrimSpace(doc.Fetch("name")),
		Version: strings.TrimSpace(doc.Fetch("version")),
		Type:    strings.TrimSpace(doc.Fetch("type")),
	}
	for field, value := range map[string]string{"id": info.ID, "name": info.Name, "version": info.Version} {
		if value == "" {
			return nil, errors.Newf(errors.ErrManifestInvalid, "package-info.xml has no <%s>", field)
		}
	}
	if info.Type == "" {
		info.Type = "modification"
	}

	for _, child := range doc.Children() {
		phase := Phase(child.Name())
		switch phase {
		case PhaseInstall, PhaseUpgrade, PhaseUninstall:
		default:
			continue
		}

		block := Block{
			Phase: phase,
			For:   strings.TrimSpace(child.Fetch(".@for")),
			From:  strings.TrimSpace(child.Fetch(".@from")),
		}
		for i, el := range child.Children() {
			action, err := parseAction(el)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "<%s> action %d", phase, i+1).
					WithDetail("element", el.Name())
			}
			block.Actions = append(block.Actions, action)
		}
		info.Blocks = append(info.Blocks, block)
	}

	if !info.Has(PhaseInstall) {
		return nil, errors.New(errors.ErrManifestInvalid, "package-info.xml has no <install> block")
	}
	return info, nil
}

func content(el *xmldoc.Doc) Content {
	return Content{
		Inline: strings.EqualFold(el.Fetch(".@type"), "inline"),
		Text:   strings.TrimSpace(el.Fetch(".")),
	}
}

func boolAttr(el *xmldoc.Doc, name string) bool {
	v := strings.ToLower(el.Fetch(".@" + name))
	return v == "true" || v == "1" || v == "yes"
}

func attr(el *xmldoc.Doc, name string) string {
	return strings.TrimSpace(el.Fetch(".@" + name))
}

func required(kind, name, value string) error {
	if value == "" {
		return errors.Newf(errors.ErrManifestInvalid, "<%s> needs a %s attribute", kind, name)
	}
	return nil
}

// parseAction resolves one action element into its concrete type
func parseAction(el *xmldoc.Doc) (Action, error) {
	kind := Kind(el.Name())
	switch kind {
	case KindModification:
		c := content(el)
		if c.Text == "" {
			return nil, errors.New(errors.ErrManifestInvalid, "<modification> is empty")
		}
		format := patch.FormatXML
		if strings.EqualFold(attr(el, "format"), string(patch.FormatBoardMod)) {
			format = patch.FormatBoardMod
		}
		return &Modification{Content: c, Format: format, Reverse: boolAttr(el, "reverse")}, nil

	case KindCode, KindDatabase:
		c := content(el)
		if c.Text == "" {
			return nil, errors.Newf(errors.ErrManifestInvalid, "<%s> is empty", kind)
		}
		if kind == KindCode {
			return &Code{Content: c}, nil
		}
		return &Database{Content: c}, nil

	case KindRedirect:
		timeout, _ := strconv.Atoi(attr(el, "timeout"))
		return &Redirect{URL: attr(el, "url"), Timeout: timeout, Message: strings.TrimSpace(el.Fetch("."))}, nil

	case KindHook:
		h := &Hook{
			Hook:     attr(el, "hook"),
			Function: attr(el, "function"),
			File:     attr(el, "file"),
			Object:   boolAttr(el, "object"),
			Reverse:  boolAttr(el, "reverse"),
		}
		if err := required("hook", "hook", h.Hook); err != nil {
			return nil, err
		}
		return h, required("hook", "function", h.Function)

	case KindCredits:
		return &Credits{
			Title:     strings.TrimSpace(el.Fetch(".")),
			URL:       attr(el, "url"),
			License:   attr(el, "license"),
			Copyright: attr(el, "copyright"),
		}, nil

	case KindRequires:
		r := &Requires{ID: attr(el, "id"), Version: attr(el, "version")}
		return r, required("requires", "id", r.ID)

	case KindCreateFile, KindCreateDir, KindRequireFile, KindRequireDir:
		name, dest := attr(el, "name"), attr(el, "destination")
		if err := required(string(kind), "name", name); err != nil {
			return nil, err
		}
		if err := required(string(kind), "destination", dest); err != nil {
			return nil, err
		}
		switch kind {
		case KindCreateFile:
			return &CreateFile{Name: name, Destination: dest}, nil
		case KindCreateDir:
			return &CreateDir{Name: name, Destination: dest}, nil
		case KindRequireFile:
			return &RequireFile{Name: name, Destination: dest}, nil
		}
		return &RequireDir{Name: name, Destination: dest}, nil

	case KindMoveFile, KindMoveDir:
		from := attr(el, "from")
		if from == "" {
			from = attr(el, "name")
		}
		dest := attr(el, "destination")
		if err := required(string(kind), "from", from); err != nil {
			return nil, err
		}
		if err := required(string(kind), "destination", dest); err != nil {
			return nil, err
		}
		if kind == KindMoveFile {
			return &MoveFile{From: from, Destination: dest}, nil
		}
		return &MoveDir{From: from, Destination: dest}, nil

	case KindRemoveFile, KindRemoveDir:
		name := attr(el, "name")
		if err := required(string(kind), "name", name); err != nil {
			return nil, err
		}
		if kind == KindRemoveFile {
			return &RemoveFile{Name: name}, nil
		}
		return &RemoveDir{Name: name}, nil

	case KindError:
		return &Error{Message: strings.TrimSpace(el.Fetch("."))}, nil

	case KindReadme:
		return &Readme{Content: content(el), ParseBBC: boolAttr(el, "parsebbc")}, nil

	case KindLicense:
		return &License{Content: content(el)}, nil
	}
	return nil, errors.Newf(errors.ErrManifestInvalid, "unknown action <%s>", kind)
}
