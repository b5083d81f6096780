package buildpolicy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/buildtool/buildtool/pkg/telemetry"
)

// compiledPolicy pairs a Policy with its parsed module. The parse only
// validates the source when the policy is loaded; evaluation passes the
// Rego text to rego.New, which compiles it again on every Evaluate.
type compiledPolicy struct {
	policy *Policy
	module *ast.Module
}

// Engine evaluates the enabled policy set against ActionInputs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

// NewEngine creates an Engine preloaded with the built-in policy set.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("buildpolicy"),
	}
	for _, p := range builtinPolicies() {
		if err := e.compileAndStore(p); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies parses and registers operator-supplied .rego files found
// under paths (files or directories), in addition to the built-in set.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := newLoader(e.logger)
	policies, err := loader.loadFromPaths(paths)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}
	for _, p := range policies {
		if err := e.compileAndStore(p); err != nil {
			return fmt.Errorf("compiling policy %s: %w", p.Name, err)
		}
	}
	e.logger.Infof("loaded %d operator policies from %d paths", len(policies), len(paths))
	return nil
}

func (e *Engine) compileAndStore(p Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &compiledPolicy{policy: &p, module: module}
	return nil
}

// Evaluate runs every enabled policy's deny query against input, returning
// a Result whose Allowed field is false if any violation has blocking
// severity.
func (e *Engine) Evaluate(ctx context.Context, input ActionInput) (*Result, error) {
	e.mu.RLock()
	policies := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled {
			policies = append(policies, cp)
		}
	}
	e.mu.RUnlock()

	wrapped := map[string]interface{}{"action": input}

	var violations []Violation
	for _, cp := range policies {
		vs, err := e.evaluateOne(ctx, cp, wrapped)
		if err != nil {
			e.logger.WithError(err).Warnf("policy %s failed to evaluate for %s", cp.policy.Name, input.Label)
			continue
		}
		violations = append(violations, vs...)
	}

	allowed := true
	for _, v := range violations {
		if v.Severity.blocking() {
			allowed = false
			break
		}
	}

	return &Result{Allowed: allowed, Violations: violations}, nil
}

func (e *Engine) evaluateOne(ctx context.Context, cp *compiledPolicy, input map[string]interface{}) ([]Violation, error) {
	packageName := extractPackageName(cp.policy.Rego)
	query := fmt.Sprintf("data.%s.deny", packageName)

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, cp.toViolation(d, input))
		}
	}
	return violations, nil
}

func (cp *compiledPolicy) toViolation(raw interface{}, input map[string]interface{}) Violation {
	v := Violation{
		Policy:     cp.policy.Name,
		Severity:   cp.policy.Severity,
		DetectedAt: time.Now(),
	}
	if action, ok := input["action"].(ActionInput); ok {
		v.ActionLabel = action.Label
	}
	switch raw := raw.(type) {
	case string:
		v.Message = raw
	case map[string]interface{}:
		if msg, ok := raw["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := raw["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}
	return v
}

func extractPackageName(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "buildtool.policies"
}

// ListPolicies returns every registered policy, built-in and operator
// supplied.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, *cp.policy)
	}
	return out
}
