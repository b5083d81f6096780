// Package fsview turns raw filesystem state into versioned evaluator
// values: a path's kind and identity (FileKey), a directory's ordered
// children (DirectoryListingKey), and a regular file's content digest
// (FileDigestKey). Every other layer of the build engine — the package
// loader's globs, the action executor's input hashing — depends on these
// three key types rather than touching the filesystem directly, so that
// change detection and dependency tracking stay centralized here.
package fsview

import "path/filepath"

// FileKey resolves to the FileValue of a single path: its kind, size,
// digest (regular files), or mtime/inode proxy (directories and symlinks).
type FileKey struct {
	Path string
}

// Type implements evaluator.Key.
func (k FileKey) Type() string { return "FileKey" }

// String implements evaluator.Key.
func (k FileKey) String() string { return filepath.Clean(k.Path) }

// DirectoryListingKey resolves to the ordered list of a directory's direct
// children, each with its Kind. Globs depend on this key so that adding,
// removing, or renaming an entry correctly invalidates them.
type DirectoryListingKey struct {
	Path string
}

// Type implements evaluator.Key.
func (k DirectoryListingKey) Type() string { return "DirectoryListingKey" }

// String implements evaluator.Key.
func (k DirectoryListingKey) String() string { return filepath.Clean(k.Path) }

// FileDigestKey resolves to the content digest of a regular file, computed
// independently of FileKey so that a consumer that only needs the digest
// (e.g. action input hashing) doesn't force a full FileValue resolution,
// and so the digest can be memoized separately from the cheaper stat.
type FileDigestKey struct {
	Path string
}

// Type implements evaluator.Key.
func (k FileDigestKey) Type() string { return "FileDigestKey" }

// String implements evaluator.Key.
func (k FileDigestKey) String() string { return filepath.Clean(k.Path) }
