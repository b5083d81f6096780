// Package remoteexec is the thin gRPC contract a build invocation speaks to
// an optional remote cache/execution service: looking up and storing action
// results, and reading/writing the content-addressed blobs those results
// reference. It mirrors pkg/actionexec's cache.Record/cache.Cache shapes
// over the wire instead of reimplementing them.
package remoteexec

import "github.com/buildtool/buildtool/pkg/artifact"

// ActionResult is the wire form of a completed action, keyed by its
// action_key (see pkg/actionexec.ActionKey).
type ActionResult struct {
	ActionKey string           `json:"action_key"`
	Outputs   []OutputDigest   `json:"outputs"`
	ExitCode  int              `json:"exit_code"`
}

// OutputDigest names one output by its exec-root-relative path and content
// digest, reusing artifact.Digest's wire shape verbatim.
type OutputDigest struct {
	Path   string          `json:"path"`
	Digest artifact.Digest `json:"digest"`
}

// GetActionResultRequest looks up a cached result by action_key.
type GetActionResultRequest struct {
	ActionKey string `json:"action_key"`
}

// GetActionResultResponse reports whether a result was found.
type GetActionResultResponse struct {
	Result *ActionResult `json:"result,omitempty"`
	Found  bool          `json:"found"`
}

// ExecuteRequest asks the remote service to run an action itself, rather
// than merely caching a result computed locally. Mirrors the inputs an
// actionexec.Executor needs to run the same action locally.
type ExecuteRequest struct {
	ActionKey    string            `json:"action_key"`
	Mnemonic     string            `json:"mnemonic"`
	Argv         []string          `json:"argv,omitempty"`
	SpawnTool    string            `json:"spawn_tool,omitempty"`
	SpawnArgs    map[string]string `json:"spawn_args,omitempty"`
	EnvAllowlist []string          `json:"env_allowlist"`
	InputBlobs   []OutputDigest    `json:"input_blobs"`
}

// ExecuteResponse carries the outcome of a remote execution, including the
// resulting ActionResult so the caller can store it in its own local action
// cache without a second round trip.
type ExecuteResponse struct {
	Result ActionResult `json:"result"`
	Stdout string       `json:"stdout,omitempty"`
	Stderr string       `json:"stderr,omitempty"`
}

// ReadBlobRequest fetches a content-addressed blob by digest. A blob that
// has expired under the remote's TTL policy is re-derived lazily rather
// than eagerly refreshed: ReadBlob re-triggers whatever produced it instead
// of failing, per the lazy-on-first-fetch semantics the build engine
// expects from a remote cache.
type ReadBlobRequest struct {
	Digest artifact.Digest `json:"digest"`
}

// ReadBlobResponse carries the blob's bytes, or reports it could not be
// produced even after a lazy re-derivation attempt.
type ReadBlobResponse struct {
	Content []byte `json:"content"`
	Found   bool   `json:"found"`
}

// WriteBlobRequest uploads a blob's bytes, keyed by its own content digest.
type WriteBlobRequest struct {
	Digest  artifact.Digest `json:"digest"`
	Content []byte          `json:"content"`
}

// WriteBlobResponse confirms a blob was accepted and durably stored.
type WriteBlobResponse struct {
	Stored bool `json:"stored"`
}
