// Package buildpolicy evaluates operator-supplied and built-in Rego
// policies against actions before they are scheduled. It covers the
// advisory subset of the engine's invariants: rules an operator may want
// to tighten or relax (which environment variables an action may consume,
// where a disk cache may live) as opposed to the hard invariants
// pkg/actiongraph enforces unconditionally (output disjointness, output
// prefix containment, input provenance).
package buildpolicy

import "time"

// Severity classifies how seriously a violation should be treated.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// blocking reports whether a violation at this severity should fail the
// build rather than merely be surfaced as a warning.
func (s Severity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is one named Rego module plus its metadata.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
	Tags        []string
}

// Violation is one policy denial produced by evaluating an ActionInput.
type Violation struct {
	Policy      string    `json:"policy"`
	ActionLabel string    `json:"action_label,omitempty"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ActionInput is the subset of an action's declaration exposed to policy
// evaluation, deliberately decoupled from pkg/actiongraph.Action so policy
// modules see a stable, documented input shape rather than an internal
// struct.
type ActionInput struct {
	Label         string   `json:"label"`
	Mnemonic      string   `json:"mnemonic"`
	EnvAllowlist  []string `json:"env_allowlist"`
	DiskCachePath string   `json:"disk_cache_path,omitempty"`
}

// Result is the outcome of evaluating every enabled policy against one
// ActionInput.
type Result struct {
	Allowed    bool
	Violations []Violation
}
