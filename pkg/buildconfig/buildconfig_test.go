package buildconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildOptionsValidateRejectsNegativeJobs(t *testing.T) {
	o := DefaultBuildOptions()
	o.Jobs = -1
	require.Error(t, o.Validate())
}

func TestBuildOptionsValidateRejectsMalformedRemoteCacheURL(t *testing.T) {
	o := DefaultBuildOptions()
	o.RemoteCacheURL = "not a url"
	require.Error(t, o.Validate())
}

func TestBuildOptionsValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, DefaultBuildOptions().Validate())
}

func TestNewConfigurationRejectsUnknownCompilationMode(t *testing.T) {
	_, err := NewConfiguration("linux/amd64", "release", nil)
	require.Error(t, err)
}

func TestNewConfigurationRejectsMalformedPlatform(t *testing.T) {
	_, err := NewConfiguration("Linux AMD64", "opt", nil)
	require.Error(t, err)
}

func TestNewConfigurationAccepted(t *testing.T) {
	c, err := NewConfiguration("linux/amd64", "opt", map[string]string{"race": "true"})
	require.NoError(t, err)
	require.Equal(t, "linux/amd64", c.Platform)
	require.Equal(t, "opt", c.CompilationMode)
}

func TestHashIsStableAcrossFlagInsertionOrder(t *testing.T) {
	a := Configuration{Platform: "linux/amd64", CompilationMode: "opt"}.
		WithFlag("race", "true").
		WithFlag("strip", "false")
	b := Configuration{Platform: "linux/amd64", CompilationMode: "opt"}.
		WithFlag("strip", "false").
		WithFlag("race", "true")

	require.Equal(t, a.Hash(), b.Hash())
}

func TestHashChangesWithAnyFieldChange(t *testing.T) {
	base, err := NewConfiguration("linux/amd64", "opt", nil)
	require.NoError(t, err)

	other, err := NewConfiguration("linux/amd64", "dbg", nil)
	require.NoError(t, err)

	require.NotEqual(t, base.Hash(), other.Hash())
}

func TestWithFlagDoesNotMutateReceiver(t *testing.T) {
	base, err := NewConfiguration("linux/amd64", "opt", nil)
	require.NoError(t, err)

	base.WithFlag("race", "true")
	require.Empty(t, base.Flags)
}
