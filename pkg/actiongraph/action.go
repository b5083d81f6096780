package actiongraph

import "github.com/buildtool/buildtool/pkg/artifact"

// SpawnSpec is a structured alternative to a bare argv, for runners (e.g.
// pkg/remoteexec) that need a tool identity and discrete arguments rather
// than a pre-flattened command line.
type SpawnSpec struct {
	Tool string
	Args map[string]string
}

// Action is the declarative unit an action graph is built from: a
// fingerprint-able description of a command to run, never the command's
// result. Two Actions with identical Mnemonic, EnvAllowlist, Argv/SpawnSpec,
// and input-set hash are, by construction, the same cache entry.
type Action struct {
	// Label identifies the action uniquely within a build, typically the
	// owning configured target's label plus a disambiguating suffix (e.g.
	// "//a:lib#compile") when a target declares more than one action.
	Label string

	Mnemonic string

	// EnvAllowlist names the only environment variables the runner passes
	// through to the spawned process; anything else in the ambient
	// environment is invisible to the action.
	EnvAllowlist []string

	// Argv is the command line, mutually exclusive with SpawnSpec.
	Argv []string

	// SpawnSpec is a structured command description, mutually exclusive
	// with Argv.
	SpawnSpec *SpawnSpec

	Inputs  *NestedSet[artifact.Artifact]
	Outputs []artifact.Artifact
}

// leafHasher extracts an artifact's (path, digest) pair for NestedSet
// hashing, using whichever path field its Kind populates.
func leafHasher(a artifact.Artifact) (path string, digestHex string) {
	if a.Kind == artifact.KindSource {
		path = a.WorkspacePath
	} else {
		path = a.ExecRootPath
	}
	return path, a.Digest.Hex
}

// InputsHash returns the action's input-set hash, per the action cache key
// formula. Every input's Digest must already be resolved by the time this
// is called (pkg/actionexec's Executor does so via InputDigester before
// computing ActionKey); an unresolved (zero) digest just hashes as an
// empty string.
func (a *Action) InputsHash() string {
	if a.Inputs == nil {
		return NewNestedSet[artifact.Artifact](nil).Hash(leafHasher)
	}
	return a.Inputs.Hash(leafHasher)
}
