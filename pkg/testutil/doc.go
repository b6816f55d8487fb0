// Package testutil provides test helpers shared by modman's package tests:
// a permission-enforcing in-memory filesystem, forum environments backed by
// memory or a temp directory, file assertions, and builders for TAR+gzip
// and ZIP fixture archives.
package testutil
