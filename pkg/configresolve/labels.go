package configresolve

import (
	"fmt"
	"path"
	"strings"
)

// ParseLabel splits a fully qualified "//dir:name" label into its package
// directory and target name.
func ParseLabel(label string) (dir, name string, err error) {
	if !strings.HasPrefix(label, "//") {
		return "", "", fmt.Errorf("label %q: must start with //", label)
	}
	rest := label[2:]
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("label %q: missing \":name\"", label)
	}
	dir = rest[:idx]
	name = rest[idx+1:]
	if name == "" {
		return "", "", fmt.Errorf("label %q: empty target name", label)
	}
	return dir, name, nil
}

// sourcePath returns the workspace-relative path a bare source-file
// reference (a label with no corresponding rule target) addresses.
func sourcePath(dir, name string) string {
	return path.Join(dir, name)
}
