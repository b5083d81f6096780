package fsview

import (
	"time"

	"github.com/buildtool/buildtool/pkg/evaluator"
)

// Kind discriminates the filesystem object a FileValue describes.
type Kind string

const (
	KindRegular Kind = "regular"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindAbsent  Kind = "absent"
)

// Digest is a type-discriminated content fingerprint. For regular files it
// is a real content hash; for directories and symlinks — which have no
// single notion of "content" — it substitutes a fingerprint built from
// their own defining fields, so the evaluator's equality-for-invalidation
// check has a uniform thing to compare regardless of Kind.
type Digest struct {
	Algorithm string // "sha256", or "proxy" for the non-regular-file substitute
	Hex       string
}

// Equal reports whether two digests are the same algorithm and value.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// IsZero reports whether d carries no information.
func (d Digest) IsZero() bool { return d.Algorithm == "" && d.Hex == "" }

// FileValue is the resolved state of a single path, with just enough
// information to decide, cheaply, whether it changed since last observed.
type FileValue struct {
	Path string
	Kind Kind

	// Size is valid for KindRegular only.
	Size int64

	// Digest is the content digest for KindRegular once computed; absent
	// (IsZero) until DigestPolicy actually reads the file, since digesting
	// is lazy.
	Digest Digest

	// ModTime and InodeProxy back the cheap stat-based equality check used
	// for directories and symlinks, and for regular files whose Digest is
	// not known on both sides of a comparison (see ChangedSince).
	ModTime    time.Time
	InodeProxy uint64

	// SymlinkTarget holds the textual target for KindSymlink.
	SymlinkTarget string
}

// ChangedSince reports whether v differs from prev in a way that should be
// treated as a content change: a Kind change always counts; for regular
// files a Digest mismatch (when both are known) takes precedence, falling
// back to the size/mtime/inode proxy; for everything else the proxy alone
// decides.
func (v FileValue) ChangedSince(prev FileValue) bool {
	if v.Kind != prev.Kind {
		return true
	}
	if v.Kind == KindRegular && !v.Digest.IsZero() && !prev.Digest.IsZero() {
		return !v.Digest.Equal(prev.Digest)
	}
	if v.Size != prev.Size {
		return true
	}
	if !v.ModTime.Equal(prev.ModTime) {
		return true
	}
	return v.InodeProxy != prev.InodeProxy
}

// Equal implements evaluator.Equaler so that the evaluator's change-pruning
// check uses the same digest-precedence notion of "changed" as ChangedSince,
// rather than a field-by-field deep comparison that would also trip on an
// untouched file's mtime being rewritten by an unrelated metadata update.
func (v FileValue) Equal(other evaluator.Value) bool {
	o, ok := other.(FileValue)
	if !ok {
		return false
	}
	return !v.ChangedSince(o)
}

// DirEntry is one child of a directory listing.
type DirEntry struct {
	Name string
	Kind Kind
}

// DirectoryListing is the ordered, deterministic (lexicographic by Name)
// set of a directory's direct children.
type DirectoryListing struct {
	Path    string
	Entries []DirEntry
}
