package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/buildtool/buildtool/pkg/configresolve"
	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/fsview"
	"github.com/buildtool/buildtool/pkg/pkgloader"
)

func newQueryCommand() *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "query <label>",
		Short: "Print a target's dependencies",
		Long: `query loads the package-definition files reachable from label and prints
its dependency edges. This operates purely at the package graph level — it
never runs a rule implementation, so it works identically regardless of
which (if any) rule kinds this binary has implementations compiled in for.`,
		Example: `  buildtool query //a:lib
  buildtool query --deep //a:lib`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], deep)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "print the full transitive dependency closure instead of only direct deps")
	return cmd
}

func runQuery(ctx context.Context, label string, deep bool) error {
	registry, err := loadRuleRegistry(workspaceRoot)
	if err != nil {
		return err
	}

	ev := evaluator.New(evaluator.Options{Workers: jobsOrDefault()})
	fsview.New(nil).Register(ev)
	pkgloader.New(workspaceRoot, registry).Register(ev)

	if !deep {
		target, err := lookupTarget(ctx, ev, label)
		if err != nil {
			return err
		}
		for _, dep := range target.Deps {
			fmt.Println(dep)
		}
		return nil
	}

	closure, err := transitiveDeps(ctx, ev, label)
	if err != nil {
		return err
	}
	labels := make([]string, 0, len(closure))
	for l := range closure {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Println(l)
	}
	return nil
}

func jobsOrDefault() int {
	if jobs > 0 {
		return jobs
	}
	return 4
}

func lookupTarget(ctx context.Context, ev *evaluator.Evaluator, label string) (*pkgloader.Target, error) {
	dir, name, err := configresolve.ParseLabel(label)
	if err != nil {
		return nil, err
	}

	values, err := ev.Evaluate(ctx, pkgloader.PackageKey{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("loading package %s: %w", dir, err)
	}
	pkg := values[0].(*pkgloader.Package)
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("package %s: %w", dir, pkg.Errors[0])
	}

	target, ok := pkg.Targets[name]
	if !ok {
		return nil, fmt.Errorf("no target named %q in package %s", name, dir)
	}
	return target, nil
}

// transitiveDeps walks label's dependency edges breadth-first, skipping
// bare source-file references (which resolve to no package of their own).
func transitiveDeps(ctx context.Context, ev *evaluator.Evaluator, label string) (map[string]struct{}, error) {
	seen := map[string]struct{}{}
	queue := []string{label}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		target, err := lookupTarget(ctx, ev, next)
		if err != nil {
			// A dependency with no rule declaration is a bare source file;
			// it has no further deps of its own to walk.
			continue
		}
		for _, dep := range target.Deps {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return seen, nil
}
