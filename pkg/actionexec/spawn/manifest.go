package spawn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ToolManifest describes a WASM tool plugin for WASMRunner: which module to
// load, the action mnemonics it's willing to serve, and an optional
// checksum to verify before trusting it.
type ToolManifest struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	Entrypoint string   `yaml:"entrypoint"`
	Checksum   string   `yaml:"checksum,omitempty"`
	Mnemonics  []string `yaml:"mnemonics"`
}

// LoadToolManifest reads and validates a YAML tool-plugin manifest from path.
func LoadToolManifest(path string) (*ToolManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool manifest: %w", err)
	}

	var m ToolManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing tool manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("tool manifest %s: name is required", path)
	}
	if m.Entrypoint == "" {
		return nil, fmt.Errorf("tool manifest %s: entrypoint is required", path)
	}
	if len(m.Mnemonics) == 0 {
		return nil, fmt.Errorf("tool manifest %s: at least one mnemonic is required", path)
	}
	return &m, nil
}

// RegisterFromManifest loads manifestPath's WASM module (resolved relative
// to the manifest's own directory when Entrypoint is a relative path),
// verifies its checksum when the manifest declares one, and registers it
// with runner under the manifest's tool name.
func RegisterFromManifest(runner *WASMRunner, manifestPath string) (*ToolManifest, error) {
	manifest, err := LoadToolManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	wasmPath := manifest.Entrypoint
	if !filepath.IsAbs(wasmPath) {
		wasmPath = filepath.Join(filepath.Dir(manifestPath), wasmPath)
	}
	module, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("reading wasm module %s: %w", wasmPath, err)
	}

	if manifest.Checksum != "" {
		sum := sha256.Sum256(module)
		if hex.EncodeToString(sum[:]) != manifest.Checksum {
			return nil, fmt.Errorf("tool manifest %s: wasm module checksum mismatch: expected %s, got %x", manifestPath, manifest.Checksum, sum)
		}
	}

	runner.RegisterModule(manifest.Name, module)
	return manifest, nil
}

// HandlesMnemonic reports whether manifest declared itself willing to
// serve the given action mnemonic.
func (m *ToolManifest) HandlesMnemonic(mnemonic string) bool {
	for _, candidate := range m.Mnemonics {
		if candidate == mnemonic {
			return true
		}
	}
	return false
}
