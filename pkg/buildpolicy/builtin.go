package buildpolicy

// builtinPolicies returns the policies loaded into every Engine before any
// operator-supplied .rego files are added.
func builtinPolicies() []Policy {
	return []Policy{
		envAllowlistPolicy(),
		diskCachePathPolicy(),
	}
}

// envAllowlistPolicy flags actions whose env allowlist names an
// environment variable that commonly carries ambient, non-hermetic state.
func envAllowlistPolicy() Policy {
	return Policy{
		Name:        "env-allowlist",
		Description: "flags actions whose env allowlist admits ambient, non-hermetic variables",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"hermeticity"},
		Rego: `package buildtool.policies.env_allowlist

import rego.v1

sensitive := {"HOME", "PATH", "USER", "TMPDIR"}

deny contains violation if {
	input.action
	some v in input.action.env_allowlist
	v in sensitive
	violation := {
		"message": sprintf("action %s allowlists ambient variable %q without an explicit override", [input.action.label, v]),
		"severity": "warning",
	}
}
`,
	}
}

// diskCachePathPolicy requires the disk cache to live under the workspace
// cache directory, so a misconfigured --disk_cache flag can't point the
// cache at an arbitrary, possibly shared, filesystem location.
func diskCachePathPolicy() Policy {
	return Policy{
		Name:        "disk-cache-path",
		Description: "requires the disk cache path to live under .cache",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"cache"},
		Rego: `package buildtool.policies.disk_cache_path

import rego.v1

deny contains violation if {
	input.action
	path := input.action.disk_cache_path
	path != ""
	not contains(path, "/.cache/")
	not endswith(path, "/.cache")
	violation := {
		"message": sprintf("disk cache path %q must live under $WORKSPACE/.cache", [path]),
		"severity": "error",
	}
}
`,
	}
}
