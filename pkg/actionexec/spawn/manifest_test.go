package spawn

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, yamlBody string) string {
	t.Helper()
	path := filepath.Join(dir, "tool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func TestLoadToolManifestRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadToolManifest(writeManifest(t, dir, `entrypoint: formatter.wasm
mnemonics: [Format]
`))
	require.ErrorContains(t, err, "name is required")

	_, err = LoadToolManifest(writeManifest(t, dir, `name: formatter
mnemonics: [Format]
`))
	require.ErrorContains(t, err, "entrypoint is required")

	_, err = LoadToolManifest(writeManifest(t, dir, `name: formatter
entrypoint: formatter.wasm
`))
	require.ErrorContains(t, err, "mnemonic is required")
}

func TestRegisterFromManifestResolvesEntrypointRelativeToManifestDir(t *testing.T) {
	dir := t.TempDir()
	module := []byte("\x00asm fake wasm bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formatter.wasm"), module, 0o644))

	manifestPath := writeManifest(t, dir, `name: formatter
entrypoint: formatter.wasm
mnemonics: [Format]
`)

	runner := &WASMRunner{modules: make(map[string][]byte)}
	manifest, err := RegisterFromManifest(runner, manifestPath)
	require.NoError(t, err)
	require.Equal(t, "formatter", manifest.Name)
	require.True(t, manifest.HandlesMnemonic("Format"))
	require.False(t, manifest.HandlesMnemonic("Compile"))

	registered, ok := runner.modules["formatter"]
	require.True(t, ok)
	require.Equal(t, module, registered)
}

func TestRegisterFromManifestVerifiesChecksum(t *testing.T) {
	dir := t.TempDir()
	module := []byte("\x00asm fake wasm bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formatter.wasm"), module, 0o644))
	sum := sha256.Sum256(module)

	good := writeManifest(t, dir, `name: formatter
entrypoint: formatter.wasm
mnemonics: [Format]
checksum: `+hex.EncodeToString(sum[:])+"\n")

	runner := &WASMRunner{modules: make(map[string][]byte)}
	_, err := RegisterFromManifest(runner, good)
	require.NoError(t, err)

	bad := writeManifest(t, dir, `name: formatter
entrypoint: formatter.wasm
mnemonics: [Format]
checksum: deadbeef
`)
	_, err = RegisterFromManifest(runner, bad)
	require.ErrorContains(t, err, "checksum mismatch")
}
