package manifest

import "github.com/arthur-debert/modman/pkg/patch"

// Kind names an action element
type Kind string

const (
	KindModification Kind = "modification"
	KindCode         Kind = "code"
	KindDatabase     Kind = "database"
	KindRedirect     Kind = "redirect"
	KindHook         Kind = "hook"
	KindCredits      Kind = "credits"
	KindRequires     Kind = "requires"
	KindCreateFile   Kind = "create-file"
	KindCreateDir    Kind = "create-dir"
	KindRequireFile  Kind = "require-file"
	KindRequireDir   Kind = "require-dir"
	KindMoveFile     Kind = "move-file"
	KindMoveDir      Kind = "move-dir"
	KindRemoveFile   Kind = "remove-file"
	KindRemoveDir    Kind = "remove-dir"
	KindError        Kind = "error"
	KindReadme       Kind = "readme"
	KindLicense      Kind = "license"
)

// Action is one instruction of a block. The set of implementations is
// closed; use a type switch to execute them.
type Action interface {
	Kind() Kind
	action()
}

// Content is text either inline in the manifest or in a package file
type Content struct {
	// Inline is true when Text holds the content itself
	Inline bool
	// Text is the inline content or the package relative file name
	Text string
}

// Modification applies a modification script
type Modification struct {
	Content
	Format patch.Format
	// Reverse applies the script backwards, used in uninstall blocks
	Reverse bool
}

// Code runs a PHP script on the host
type Code struct{ Content }

// Database runs a database script on the host
type Database struct{ Content }

// Redirect sends the user somewhere once the install finishes
type Redirect struct {
	URL     string
	Timeout int
	Message string
}

// Hook registers a callback; Reverse removes it again
type Hook struct {
	Hook     string
	Function string
	File     string
	Object   bool
	Reverse  bool
}

// Credits is the attribution shown by the forum
type Credits struct {
	Title     string
	URL       string
	License   string
	Copyright string
}

// Requires names a package that must already be installed
type Requires struct {
	ID      string
	Version string
}

// CreateFile creates an empty file Name below Destination
type CreateFile struct{ Name, Destination string }

// CreateDir creates directory Name below Destination
type CreateDir struct{ Name, Destination string }

// RequireFile copies package file Name into Destination
type RequireFile struct{ Name, Destination string }

// RequireDir copies package directory Name into Destination
type RequireDir struct{ Name, Destination string }

// MoveFile moves From into Destination
type MoveFile struct{ From, Destination string }

// MoveDir moves directory From into Destination
type MoveDir struct{ From, Destination string }

// RemoveFile deletes a forum file
type RemoveFile struct{ Name string }

// RemoveDir deletes a forum directory tree
type RemoveDir struct{ Name string }

// Error aborts the block with a message
type Error struct{ Message string }

// Readme is shown before install
type Readme struct {
	Content
	ParseBBC bool
}

// License must be accepted before install
type License struct{ Content }

func (*Modification) Kind() Kind { return KindModification }
func (*Code) Kind() Kind         { return KindCode }
func (*Database) Kind() Kind     { return KindDatabase }
func (*Redirect) Kind() Kind     { return KindRedirect }
func (*Hook) Kind() Kind         { return KindHook }
func (*Credits) Kind() Kind      { return KindCredits }
func (*Requires) Kind() Kind     { return KindRequires }
func (*CreateFile) Kind() Kind   { return KindCreateFile }
func (*CreateDir) Kind() Kind    { return KindCreateDir }
func (*RequireFile) Kind() Kind  { return KindRequireFile }
func (*RequireDir) Kind() Kind   { return KindRequireDir }
func (*MoveFile) Kind() Kind     { return KindMoveFile }
func (*MoveDir) Kind() Kind      { return KindMoveDir }
func (*RemoveFile) Kind() Kind   { return KindRemoveFile }
func (*RemoveDir) Kind() Kind    { return KindRemoveDir }
func (*Error) Kind() Kind        { return KindError }
func (*Readme) Kind() Kind       { return KindReadme }
func (*License) Kind() Kind      { return KindLicense }

func (*Modification) action() {}
func (*Code) action()         {}
func (*Database) action()     {}
func (*Redirect) action()     {}
func (*Hook) action()         {}
func (*Credits) action()      {}
func (*Requires) action()     {}
func (*CreateFile) action()   {}
func (*CreateDir) action()    {}
func (*RequireFile) action()  {}
func (*RequireDir) action()   {}
func (*MoveFile) action()     {}
func (*MoveDir) action()      {}
func (*RemoveFile) action()   {}
func (*RemoveDir) action()    {}
func (*Error) action()        {}
func (*Readme) action()       {}
func (*License) action()      {}
