// Package types holds the small set of types shared across modman
// packages: the filesystem abstraction every component writes through and
// the ActionResult audit trail produced by the patch engine and the
// install orchestrator.
package types
