package configresolve

import (
	"github.com/buildtool/buildtool/pkg/buildconfig"
	"github.com/buildtool/buildtool/pkg/evaluator"
)

// ConfiguredTarget is a target paired with a configuration and the
// providers produced by applying its rule implementation.
type ConfiguredTarget struct {
	Label      string
	ConfigHash buildconfig.ConfigHash
	Providers  Providers
}

// Equal implements evaluator.Equaler, delegating to Providers' structural
// equality: Label and ConfigHash are the node's own identity and never
// differ between two values of the same node.
func (ct ConfiguredTarget) Equal(other evaluator.Value) bool {
	o, ok := other.(ConfiguredTarget)
	if !ok {
		return false
	}
	return ct.Label == o.Label && ct.ConfigHash == o.ConfigHash && ct.Providers.Equal(o.Providers)
}
