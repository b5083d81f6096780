package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildtool/buildtool/pkg/pkgloader"
)

// rulesManifestPath is the workspace-relative path to the operator-supplied
// dependency-attribute manifest: which attributes of each rule kind carry
// dependency labels. buildtool ships no rule kinds of its own, so a
// workspace with no manifest builds with an empty registry — every target's
// attributes are treated as plain data, none as a dependency edge.
const rulesManifestPath = ".buildtool/rules.json"

// loadRuleRegistry reads workspaceRoot's rules manifest, if present.
func loadRuleRegistry(workspaceRoot string) (pkgloader.RuleRegistry, error) {
	path := filepath.Join(workspaceRoot, rulesManifestPath)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pkgloader.RuleRegistry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var registry pkgloader.RuleRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return registry, nil
}
