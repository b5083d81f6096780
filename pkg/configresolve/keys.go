// Package configresolve computes a configured target's providers: it
// resolves the raw dependencies a rule instance declared, applies any
// configuration transitions along those edges, recursively requests the
// resulting configured-target keys, and runs the rule's implementation
// against the gathered provider set. Aspects layer additional providers
// onto an already-configured target as a second, independently cached
// evaluator function.
package configresolve

import (
	"fmt"

	"github.com/buildtool/buildtool/pkg/buildconfig"
)

// NullConfigHash is the configuration hash used for null-configuration
// dependencies: source files and visibility references that never carry a
// build configuration of their own.
const NullConfigHash buildconfig.ConfigHash = ""

// ConfiguredTargetKey identifies a (label, configuration) pair: a target
// paired with the configuration it is built under. The node's identity —
// what the evaluator actually keys on — is (Label, ConfigHash); the full
// Configuration travels alongside purely so the evaluating Function has
// something to run the rule implementation against, since a hash cannot be
// un-hashed back into its fields.
type ConfiguredTargetKey struct {
	Label         string
	Configuration buildconfig.Configuration
}

func (k ConfiguredTargetKey) Type() string { return "ConfiguredTargetKey" }

// ConfigHash returns NullConfigHash for a null-configuration key (the
// zero-value Configuration) and k.Configuration.Hash() otherwise.
func (k ConfiguredTargetKey) ConfigHash() buildconfig.ConfigHash {
	if k.Configuration.IsZero() {
		return NullConfigHash
	}
	return k.Configuration.Hash()
}

func (k ConfiguredTargetKey) String() string {
	hash := k.ConfigHash()
	if hash == NullConfigHash {
		return k.Label
	}
	return fmt.Sprintf("%s@%s", k.Label, hash)
}

// AspectKey identifies the providers one named aspect adds to an
// already-configured target. Cached independently of the target's own
// providers, since the same aspect applied to the same configured target
// always produces the same result regardless of which dependent asked for
// it first.
type AspectKey struct {
	Name   string
	Target ConfiguredTargetKey
}

func (k AspectKey) Type() string { return "AspectKey" }

func (k AspectKey) String() string {
	return fmt.Sprintf("%s(%s)", k.Name, k.Target)
}
