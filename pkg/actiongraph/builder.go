// Package actiongraph accumulates the Actions a build's configured targets
// declare during analysis, checking the invariants that must hold before
// any of them can be scheduled: outputs never collide, every output lives
// under its owning rule's output directory, and every input traces back to
// either a source artifact or another action already known to the graph.
package actiongraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/berrors"
)

// Builder accumulates Actions declared across a single build's analysis
// phase. Safe for concurrent use: many configured targets are analyzed in
// parallel by the evaluator's worker pool, each declaring its own actions.
type Builder struct {
	mu sync.Mutex

	actions map[string]*Action

	// outputOwner maps a declared output's Identity() to the label of the
	// action that declared it, for conflict and provenance checks.
	outputOwner map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		actions:     make(map[string]*Action),
		outputOwner: make(map[string]string),
	}
}

// Add registers action, checking it against the builder's invariants.
// outputPrefix is the exec-root-relative directory every one of action's
// outputs must fall under, normally the owning configured target's output
// directory.
func (b *Builder) Add(action *Action, outputPrefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if action.Label == "" {
		return berrors.NewPermanent("action has empty label", nil).WithCode(berrors.CodeValidation)
	}
	if _, exists := b.actions[action.Label]; exists {
		return berrors.NewPermanent(fmt.Sprintf("duplicate action label %q", action.Label), nil).
			WithCode(berrors.CodeAlreadyExists).WithResource(action.Label)
	}

	for _, out := range action.Outputs {
		id := out.Identity()

		if owner, exists := b.outputOwner[id]; exists {
			return berrors.New(berrors.ClassConflict,
				fmt.Sprintf("output %s is declared by both %s and %s", id, owner, action.Label), nil).
				WithCode(berrors.CodeConflict).WithResource(id)
		}

		if !strings.HasPrefix(out.ExecRootPath, outputPrefix) {
			return berrors.NewPermanent(
				fmt.Sprintf("output %s is not under declared output prefix %q", id, outputPrefix), nil).
				WithCode(berrors.CodeValidation).WithResource(action.Label)
		}
	}

	if action.Inputs != nil {
		for _, in := range action.Inputs.Items(OrderStable) {
			if err := b.checkProvenance(in, action.Label); err != nil {
				return err
			}
		}
	}

	b.actions[action.Label] = action
	for _, out := range action.Outputs {
		b.outputOwner[out.Identity()] = action.Label
	}
	return nil
}

// checkProvenance verifies that in is either a source artifact or the
// declared output of an action already known to the builder. Rule
// implementations are evaluated bottom-up through the evaluator's request
// graph, so an action's input-producing actions are always added first.
func (b *Builder) checkProvenance(in artifact.Artifact, consumer string) error {
	if in.Kind == artifact.KindSource {
		return nil
	}
	if _, known := b.outputOwner[in.Identity()]; !known {
		return berrors.NewPermanent(
			fmt.Sprintf("input %s to action %s is neither a source artifact nor a known action's declared output",
				in.Identity(), consumer), nil).
			WithCode(berrors.CodeValidation).WithResource(consumer)
	}
	return nil
}

// Action returns the action registered under label, if any.
func (b *Builder) Action(label string) (*Action, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.actions[label]
	return a, ok
}

// Len returns the number of actions registered so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.actions)
}

// Graph computes the action dependency graph: level-ordered groups of
// action labels where every action in a level depends only on actions in
// earlier levels, so that all actions within a level can execute in
// parallel. An action's dependencies are the generating actions of its
// inputs.
func (b *Builder) Graph() (*Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deps := make(map[string]map[string]struct{}, len(b.actions))
	dependents := make(map[string][]string, len(b.actions))
	inDegree := make(map[string]int, len(b.actions))

	for label := range b.actions {
		deps[label] = make(map[string]struct{})
		inDegree[label] = 0
	}

	for label, action := range b.actions {
		if action.Inputs == nil {
			continue
		}
		for _, in := range action.Inputs.Items(OrderStable) {
			if in.Kind == artifact.KindSource {
				continue
			}
			producer := b.outputOwner[in.Identity()]
			if producer == "" || producer == label {
				continue
			}
			if _, seen := deps[label][producer]; seen {
				continue
			}
			deps[label][producer] = struct{}{}
			dependents[producer] = append(dependents[producer], label)
			inDegree[label]++
		}
	}

	var level []string
	for label, degree := range inDegree {
		if degree == 0 {
			level = append(level, label)
		}
	}

	remaining := inDegree
	var levels [][]string
	processed := 0
	for len(level) > 0 {
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, label := range level {
			for _, dependent := range dependents[label] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		level = next
	}

	if processed != len(b.actions) {
		return nil, berrors.New(berrors.ClassCycle, "action graph contains a cycle", nil).WithCode(berrors.CodeCycle)
	}

	return &Graph{Levels: levels, Dependencies: deps}, nil
}

// Graph is the level-ordered view of an action dependency graph computed
// by Builder.Graph.
type Graph struct {
	// Levels groups action labels such that every label in Levels[n]
	// depends only on labels in Levels[0:n].
	Levels [][]string

	// Dependencies maps an action label to the set of action labels whose
	// outputs it consumes directly.
	Dependencies map[string]map[string]struct{}
}

// Depth returns the number of levels in the graph.
func (g *Graph) Depth() int { return len(g.Levels) }
