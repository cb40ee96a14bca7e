// Package store persists pipeline output on the local filesystem.
//
// FilesystemStore maps every key to a path under its root directory. Keys
// are split on "/" into directory levels and each level is percent-encoded
// so that arbitrary text, including path separators, dots and non-ASCII
// characters, round-trips through EncodeKey and DecodeKey. A key holding a
// value is a regular file; a key holding nil is an empty directory; a
// non-empty directory is only a parent of other keys.
//
// Writes go to a temporary file that is renamed into place, so a reader
// never observes a partially written entry. All operations on one instance
// are serialized by a single mutex. Config.Exclusive additionally takes an
// advisory lock on <root>/.lock so two processes cannot share a region.
package store
