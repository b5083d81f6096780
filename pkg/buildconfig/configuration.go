package buildconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ConfigHash is the hex-encoded SHA-256 digest of a Configuration's
// canonical JSON form. Half of a configured target's identity, alongside
// its label.
type ConfigHash string

// Configuration is the immutable record of option values that parameterizes
// a target build: platform, compilation mode, and any custom
// "//flag:value" entries a transition may have set.
type Configuration struct {
	Platform        string
	CompilationMode string
	Flags           map[string]string
}

// NewConfiguration builds and validates a Configuration against the
// embedded CUE schema.
func NewConfiguration(platform, compilationMode string, flags map[string]string) (Configuration, error) {
	c := Configuration{Platform: platform, CompilationMode: compilationMode, Flags: flags}
	if err := defaultValidator.validate(c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

// Hash computes c's ConfigHash: SHA-256 over a canonical JSON encoding
// (map keys sorted, so that two Configurations built with flags inserted in
// different orders hash identically).
func (c Configuration) Hash() ConfigHash {
	canonical := struct {
		Platform        string   `json:"platform"`
		CompilationMode string   `json:"compilation_mode"`
		Flags           []kvPair `json:"flags,omitempty"`
	}{
		Platform:        c.Platform,
		CompilationMode: c.CompilationMode,
		Flags:           sortedPairs(c.Flags),
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		panic(fmt.Sprintf("buildconfig: marshaling configuration: %v", err))
	}

	sum := sha256.Sum256(data)
	return ConfigHash(hex.EncodeToString(sum[:]))
}

type kvPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func sortedPairs(m map[string]string) []kvPair {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]kvPair, len(keys))
	for i, k := range keys {
		pairs[i] = kvPair{Key: k, Value: m[k]}
	}
	return pairs
}

// IsZero reports whether c carries no configuration at all: the sentinel
// used for null-configuration dependencies (source files, visibility
// references) that are never built under any configuration.
func (c Configuration) IsZero() bool {
	return c.Platform == "" && c.CompilationMode == "" && len(c.Flags) == 0
}

// WithFlag returns a copy of c with key=value set among its custom flags,
// leaving c unmodified.
func (c Configuration) WithFlag(key, value string) Configuration {
	flags := make(map[string]string, len(c.Flags)+1)
	for k, v := range c.Flags {
		flags[k] = v
	}
	flags[key] = value
	return Configuration{Platform: c.Platform, CompilationMode: c.CompilationMode, Flags: flags}
}
