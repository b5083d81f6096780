package pkgloader

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
)

// globber evaluates glob() calls against one package's directory subtree,
// recording a DirectoryListingKey dependency for every directory it visits
// so that the evaluator can tell when a glob's result set might have
// changed. It never descends into a subdirectory containing markerFile,
// since that subdirectory belongs to a different package.
type globber struct {
	ctx        *evaluator.Context
	pkgDir     string
	markerFile string
}

func newGlobber(ctx *evaluator.Context, pkgDir, markerFile string) *globber {
	return &globber{ctx: ctx, pkgDir: pkgDir, markerFile: markerFile}
}

// glob returns the package-relative paths matching any of include and none
// of exclude, in deterministic lexicographic order, deduplicated. Patterns
// are package-relative; "**" matches zero or more path segments,
// "*"/"?"/"[...]" behave as filepath.Match within one segment.
func (g *globber) glob(include, exclude []string, excludeDirectories bool) ([]string, error) {
	seen := make(map[string]bool)
	var matches []string

	for _, pattern := range include {
		found, err := g.matchPattern(pattern, excludeDirectories)
		if err != nil {
			return nil, err
		}
		for _, m := range found {
			if seen[m] {
				continue
			}
			excluded := false
			for _, ex := range exclude {
				if ok, _ := path.Match(ex, m); ok {
					excluded = true
					break
				}
			}
			if excluded {
				continue
			}
			seen[m] = true
			matches = append(matches, m)
		}
	}

	sort.Strings(matches)
	return matches, nil
}

// matchPattern walks the package subtree matching a single include pattern.
func (g *globber) matchPattern(pattern string, excludeDirectories bool) ([]string, error) {
	segments := strings.Split(pattern, "/")
	return g.walk(g.pkgDir, segments, excludeDirectories)
}

func (g *globber) walk(dir string, segments []string, excludeDirectories bool) ([]string, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	entries, err := g.listDir(dir)
	if err != nil {
		return nil, err
	}

	head := segments[0]
	rest := segments[1:]
	var results []string

	if head == "**" {
		// "**" matches zero directories: try the rest of the pattern here...
		if len(rest) > 0 {
			sub, err := g.walk(dir, rest, excludeDirectories)
			if err != nil {
				return nil, err
			}
			results = append(results, sub...)
		}
		// ...and also any number of directories below, provided they are
		// not themselves a nested package.
		for _, e := range entries {
			if e.Kind != fsview.KindDir {
				continue
			}
			if g.isNestedPackage(path.Join(dir, e.Name)) {
				continue
			}
			sub, err := g.walk(path.Join(dir, e.Name), segments, excludeDirectories)
			if err != nil {
				return nil, err
			}
			results = append(results, sub...)
		}
		return results, nil
	}

	for _, e := range entries {
		ok, err := path.Match(head, e.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		childPath := path.Join(dir, e.Name)
		if len(rest) == 0 {
			if e.Kind == fsview.KindDir {
				if excludeDirectories {
					continue
				}
			}
			rel, err := filepath.Rel(g.pkgDir, childPath)
			if err != nil {
				return nil, err
			}
			results = append(results, filepath.ToSlash(rel))
			continue
		}
		if e.Kind != fsview.KindDir {
			continue
		}
		if g.isNestedPackage(childPath) {
			continue
		}
		sub, err := g.walk(childPath, rest, excludeDirectories)
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
	}

	return results, nil
}

func (g *globber) listDir(dir string) ([]fsview.DirEntry, error) {
	v, err := g.ctx.Request(fsview.DirectoryListingKey{Path: dir})
	if err != nil {
		return nil, err
	}
	listing, _ := v.(fsview.DirectoryListing)
	return listing.Entries, nil
}

// isNestedPackage reports whether dir contains a package-definition marker
// file, meaning it is the root of a different package and must not be
// descended into by this package's glob.
func (g *globber) isNestedPackage(dir string) bool {
	entries, err := g.listDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name == g.markerFile && e.Kind == fsview.KindRegular {
			return true
		}
	}
	return false
}
