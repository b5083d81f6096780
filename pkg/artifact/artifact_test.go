package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceArtifactIdentityIsWorkspacePath(t *testing.T) {
	a := NewSourceArtifact("pkg/a/main.go")
	require.Equal(t, "source:pkg/a/main.go", a.Identity())
}

func TestDerivedArtifactIdentityStableAcrossDigestChange(t *testing.T) {
	a := NewDerivedArtifact("bin/a/main", "//a:main")
	before := a.Identity()

	a = a.WithDigest(Digest{HashFunc: "sha256", Hex: "abc", Size: 3})
	after := a.Identity()

	require.Equal(t, before, after)
	require.False(t, a.Digest.IsZero())
}

func TestSymlinkIdentityIncludesTarget(t *testing.T) {
	a := NewSymlinkArtifact("out/link", "//a:link", "./real")
	b := NewSymlinkArtifact("out/link", "//a:link", "./other")
	require.NotEqual(t, a.Identity(), b.Identity())
}

func TestWithDigestDoesNotMutateReceiver(t *testing.T) {
	a := NewDerivedArtifact("bin/a/main", "//a:main")
	a.WithDigest(Digest{HashFunc: "sha256", Hex: "abc", Size: 3})
	require.True(t, a.Digest.IsZero())
}

func TestDigestEqual(t *testing.T) {
	d1 := Digest{HashFunc: "sha256", Hex: "abc", Size: 3}
	d2 := Digest{HashFunc: "sha256", Hex: "abc", Size: 3}
	d3 := Digest{HashFunc: "sha256", Hex: "def", Size: 3}
	require.True(t, d1.Equal(d2))
	require.False(t, d1.Equal(d3))
}

func TestTreeArtifactChildren(t *testing.T) {
	a := NewTreeArtifact("out/gen", "//a:gen")
	a = a.WithChildren([]TreeChild{
		{RelPath: "x.txt", Digest: Digest{HashFunc: "sha256", Hex: "1"}},
		{RelPath: "y.txt", Digest: Digest{HashFunc: "sha256", Hex: "2"}},
	})
	require.Len(t, a.Children, 2)
}
