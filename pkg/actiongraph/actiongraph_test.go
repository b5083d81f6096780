package actiongraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/artifact"
	"github.com/buildtool/buildtool/pkg/berrors"
)

func digestArtifact(a artifact.Artifact, hex string) artifact.Artifact {
	return a.WithDigest(artifact.Digest{HashFunc: "sha256", Hex: hex, Size: 1})
}

func TestNestedSetHashIsOrderInsensitiveForDirectItems(t *testing.T) {
	leaf := func(s string) (string, string) { return s, "d-" + s }

	a := NewNestedSet([]string{"b", "a", "c"})
	b := NewNestedSet([]string{"c", "b", "a"})

	require.Equal(t, a.Hash(leaf), b.Hash(leaf))
}

func TestNestedSetHashDiffersOnContent(t *testing.T) {
	leaf := func(s string) (string, string) { return s, "d-" + s }

	a := NewNestedSet([]string{"a", "b"})
	b := NewNestedSet([]string{"a", "c"})

	require.NotEqual(t, a.Hash(leaf), b.Hash(leaf))
}

func TestNestedSetHashIsStableAcrossChildSharing(t *testing.T) {
	leaf := func(s string) (string, string) { return s, "d-" + s }

	shared := NewNestedSet([]string{"shared1", "shared2"})
	parent1 := NewNestedSet([]string{"own1"}, shared)
	parent2 := NewNestedSet([]string{"own1"}, shared)

	require.Equal(t, parent1.Hash(leaf), parent2.Hash(leaf))
}

func TestNestedSetItemsIncludesTransitiveChildren(t *testing.T) {
	child := NewNestedSet([]string{"x", "y"})
	parent := NewNestedSet([]string{"a"}, child)

	require.ElementsMatch(t, []string{"a", "x", "y"}, parent.Items(OrderStable))
}

func TestBuilderRejectsOverlappingOutputs(t *testing.T) {
	out := digestArtifact(artifact.NewDerivedArtifact("bin/out.o", "//a:one"), "h1")

	b := NewBuilder()
	require.NoError(t, b.Add(&Action{Label: "//a:one", Outputs: []artifact.Artifact{out}}, "bin"))

	err := b.Add(&Action{Label: "//a:two", Outputs: []artifact.Artifact{out}}, "bin")
	require.Error(t, err)

	var ce *berrors.ClassifiedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, berrors.ClassConflict, ce.Class)
}

func TestBuilderRejectsOutputOutsidePrefix(t *testing.T) {
	out := artifact.NewDerivedArtifact("other/out.o", "//a:one")

	b := NewBuilder()
	err := b.Add(&Action{Label: "//a:one", Outputs: []artifact.Artifact{out}}, "bin")
	require.Error(t, err)
}

func TestBuilderRejectsInputWithUnknownProvenance(t *testing.T) {
	phantom := artifact.NewDerivedArtifact("bin/phantom.o", "//a:ghost")
	action := &Action{
		Label:  "//a:one",
		Inputs: NewNestedSet([]artifact.Artifact{phantom}),
	}

	b := NewBuilder()
	err := b.Add(action, "bin")
	require.Error(t, err)
}

func TestBuilderAcceptsSourceArtifactInput(t *testing.T) {
	src := artifact.NewSourceArtifact("a/lib.go")
	action := &Action{
		Label:  "//a:one",
		Inputs: NewNestedSet([]artifact.Artifact{src}),
	}

	b := NewBuilder()
	require.NoError(t, b.Add(action, "bin"))
}

func TestBuilderAcceptsInputProducedByEarlierAction(t *testing.T) {
	produced := digestArtifact(artifact.NewDerivedArtifact("bin/a.o", "//a:compile"), "h1")

	b := NewBuilder()
	require.NoError(t, b.Add(&Action{Label: "//a:compile", Outputs: []artifact.Artifact{produced}}, "bin"))

	link := &Action{
		Label:  "//a:link",
		Inputs: NewNestedSet([]artifact.Artifact{produced}),
	}
	require.NoError(t, b.Add(link, "bin"))
}

func TestGraphLevelsRespectDependencyOrder(t *testing.T) {
	compiled := digestArtifact(artifact.NewDerivedArtifact("bin/a.o", "//a:compile"), "h1")
	linked := digestArtifact(artifact.NewDerivedArtifact("bin/a.bin", "//a:link"), "h2")

	b := NewBuilder()
	require.NoError(t, b.Add(&Action{Label: "//a:compile", Outputs: []artifact.Artifact{compiled}}, "bin"))
	require.NoError(t, b.Add(&Action{
		Label:   "//a:link",
		Inputs:  NewNestedSet([]artifact.Artifact{compiled}),
		Outputs: []artifact.Artifact{linked},
	}, "bin"))
	require.NoError(t, b.Add(&Action{
		Label:  "//a:test",
		Inputs: NewNestedSet([]artifact.Artifact{linked}),
	}, "bin"))

	g, err := b.Graph()
	require.NoError(t, err)
	require.Equal(t, 3, g.Depth())
	require.Equal(t, []string{"//a:compile"}, g.Levels[0])
	require.Equal(t, []string{"//a:link"}, g.Levels[1])
	require.Equal(t, []string{"//a:test"}, g.Levels[2])
}

func TestBuilderRejectsDuplicateActionLabel(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(&Action{Label: "//a:one"}, "bin"))
	err := b.Add(&Action{Label: "//a:one"}, "bin")
	require.Error(t, err)
}
