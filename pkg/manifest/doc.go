// Package manifest reads package-info.xml, the declarative description of
// what a package does on install, upgrade and uninstall.
//
// Each action element is resolved once at parse time into a concrete type
// implementing Action, so execution switches on Go types instead of
// re-reading element names. Select picks the block that applies to the
// running forum version and, for upgrades, to the version being replaced.
package manifest
