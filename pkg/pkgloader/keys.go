// Package pkgloader evaluates package-definition files into Package values
// on a shared evaluator. A package-definition file is a Starlark script
// that declares targets by calling rule-shaped builtins and may read the
// directory tree under it via glob(); both forms of reading are recorded as
// dependency keys so that the evaluator can tell when a Package must be
// re-evaluated.
package pkgloader

import "fmt"

// PackageKey identifies the package rooted at Dir, a workspace-relative
// directory path containing exactly one package-definition file.
type PackageKey struct {
	Dir string
}

func (k PackageKey) Type() string   { return "PackageKey" }
func (k PackageKey) String() string { return k.Dir }

// ExtensionKey identifies a load()ed Starlark file by its workspace-relative
// path. Its value is the file's exported environment (a map of global name
// to value), evaluated once and memoized like any other key.
type ExtensionKey struct {
	Path string
}

func (k ExtensionKey) Type() string   { return "ExtensionKey" }
func (k ExtensionKey) String() string { return k.Path }

func qualifiedTarget(pkgDir, name string) string {
	return fmt.Sprintf("//%s:%s", pkgDir, name)
}
