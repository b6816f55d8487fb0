// Package archive reads add-on packages distributed as TAR+gzip or ZIP
// archives, or as plain directories.
//
// The container formats are decoded here, byte for byte: gzip member
// headers and trailers, 512-byte TAR headers with octal fields, and the
// ZIP end-of-central-directory, central directory and local headers. Only
// the raw deflate streams are handed to klauspost/compress/flate.
//
// Extract runs in one of three modes chosen by Options:
//
//   - list only (no Destination, no SingleFile): every entry is returned
//     with its bytes, nothing is written;
//   - single file (SingleFile set): the bytes of the first matching entry
//     are returned, nothing is written. A "*/" prefix matches the path
//     under any directory;
//   - full extraction (Destination set): entries are written below
//     Destination, honouring Overwrite and AllowList.
//
// Entry names are sanitized before they are used as filesystem paths, and
// the joined path is re-checked against the destination root.
package archive
