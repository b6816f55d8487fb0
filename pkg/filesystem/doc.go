// Package filesystem provides the types.FS implementations modman runs on:
// the OS filesystem and an in-memory one, both through afero. Writes
// replace files atomically where the directory allows it.
package filesystem
