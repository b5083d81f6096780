// Package artifact models the semantic handles to files and trees that
// participate in the action graph: source artifacts read from the
// workspace, derived artifacts an action declares as output, tree
// artifacts whose contents are only known at execution time, and symlink
// artifacts whose target is part of their identity.
package artifact

// Kind discriminates an Artifact's variant. Behavior that differs by kind
// is expressed as explicit switches over Kind rather than virtual dispatch,
// per the tagged-sum-type treatment of artifact variants.
type Kind string

const (
	KindSource  Kind = "source"
	KindDerived Kind = "derived"
	KindTree    Kind = "tree"
	KindSymlink Kind = "symlink"
)

// Digest is a type-discriminated content fingerprint in the wire-protocol
// shape: hash function name, hex-encoded digest, and byte size. Reused
// verbatim by pkg/remoteexec's ReadBlob/WriteBlob contract.
type Digest struct {
	HashFunc string
	Hex      string
	Size     int64
}

// Equal reports whether two digests name the same content under the same
// hash function.
func (d Digest) Equal(other Digest) bool {
	return d.HashFunc == other.HashFunc && d.Hex == other.Hex && d.Size == other.Size
}

// IsZero reports whether d carries no digest information, e.g. a derived
// artifact not yet produced by its generating action.
func (d Digest) IsZero() bool {
	return d.HashFunc == "" && d.Hex == ""
}

// TreeChild is one file inside a TreeArtifact, addressed relative to the
// tree's root.
type TreeChild struct {
	RelPath string
	Digest  Digest
}

// Artifact is the tagged union of the four artifact variants. Only the
// fields relevant to its Kind are meaningful; the action graph builder and
// executor are responsible for reading the right ones.
type Artifact struct {
	Kind Kind

	// WorkspacePath identifies a KindSource artifact: a workspace-relative
	// path. Its value is the file's current digest/stat, resolved through
	// pkg/fsview.
	WorkspacePath string

	// ExecRootPath identifies a KindDerived, KindTree, or KindSymlink
	// artifact: an execution-root-relative path. Stable across builds even
	// as the artifact's value changes.
	ExecRootPath string

	// GeneratingAction is the label of the action that declares this
	// artifact as output. Set for KindDerived, KindTree, and KindSymlink;
	// every such artifact has exactly one.
	GeneratingAction string

	// SymlinkTarget is the textual target of a KindSymlink artifact. Part
	// of the artifact's identity, not just its value, since two symlinks
	// pointing at different targets are different artifacts even if
	// nothing else about them differs.
	SymlinkTarget string

	// Digest is the content fingerprint once known. Zero for a derived
	// artifact whose generating action has not yet run.
	Digest Digest

	// Children holds a KindTree artifact's contents, addressed as a unit
	// but with per-child digests inside. Never exposed as separate
	// evaluator keys outside the action executor.
	Children []TreeChild
}

// NewSourceArtifact returns a source artifact identified by a
// workspace-relative path.
func NewSourceArtifact(workspacePath string) Artifact {
	return Artifact{Kind: KindSource, WorkspacePath: workspacePath}
}

// NewDerivedArtifact returns a derived artifact identified by an
// exec-root-relative path plus the label of the action that produces it.
func NewDerivedArtifact(execRootPath, generatingAction string) Artifact {
	return Artifact{Kind: KindDerived, ExecRootPath: execRootPath, GeneratingAction: generatingAction}
}

// NewTreeArtifact returns a tree artifact identified by an
// exec-root-relative directory path plus its generating action.
func NewTreeArtifact(execRootPath, generatingAction string) Artifact {
	return Artifact{Kind: KindTree, ExecRootPath: execRootPath, GeneratingAction: generatingAction}
}

// NewSymlinkArtifact returns a symlink artifact; target is the symlink's
// textual target, part of the artifact's identity.
func NewSymlinkArtifact(execRootPath, generatingAction, target string) Artifact {
	return Artifact{Kind: KindSymlink, ExecRootPath: execRootPath, GeneratingAction: generatingAction, SymlinkTarget: target}
}

// Identity returns the stable key that distinguishes a from every other
// artifact, independent of its current value (digest/size). Two Artifact
// values with equal Identity denote the same artifact even across builds
// where its content changed.
func (a Artifact) Identity() string {
	switch a.Kind {
	case KindSource:
		return string(KindSource) + ":" + a.WorkspacePath
	case KindSymlink:
		return string(KindSymlink) + ":" + a.ExecRootPath + "->" + a.SymlinkTarget
	default:
		return string(a.Kind) + ":" + a.ExecRootPath
	}
}

// WithDigest returns a copy of a with its Digest set, leaving a itself
// unmodified.
func (a Artifact) WithDigest(d Digest) Artifact {
	a.Digest = d
	return a
}

// WithChildren returns a copy of a (which must be KindTree) with its
// Children set, leaving a itself unmodified.
func (a Artifact) WithChildren(children []TreeChild) Artifact {
	a.Children = children
	return a
}
