package libgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/keel/internal/bytestore"
	"github.com/jward/keel/internal/filestate"
	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

type harness struct {
	provider *source.MemProvider
	tracker  *filestate.Tracker
	builder  *Builder
	store    *summary.DataStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	provider := source.NewMemProvider()
	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
	ds := summary.NewDataStore()
	return &harness{
		provider: provider,
		tracker:  filestate.NewTracker(provider, nil, factory),
		builder:  &Builder{Cache: summary.NewCache(bytestore.NewMemory()), Store: ds},
		store:    ds,
	}
}

func (h *harness) build(t *testing.T, path string) *Graph {
	t.Helper()
	g, err := h.builder.Build(h.tracker.Handle(path))
	require.NoError(t, err)
	return g
}

// =============================================================================
// Graph construction
// =============================================================================

func TestBuild_ImportChain(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/a.kl", "import \"b.kl\";\nclass A {}")
	h.provider.WriteFile("/src/app/b.kl", "import \"c.kl\";\nclass B {}")
	h.provider.WriteFile("/src/app/c.kl", "class C {}")

	g := h.build(t, "/src/app/a.kl")
	assert.Equal(t, source.URI("package:app/a.kl"), g.Root)
	require.Len(t, g.Nodes, 3)

	a := g.Nodes["package:app/a.kl"]
	require.NotNil(t, a)
	assert.Equal(t, []source.URI{"package:app/b.kl"}, a.Deps)

	// Every library's units are registered in the data store.
	for _, uri := range []source.URI{"package:app/a.kl", "package:app/b.kl", "package:app/c.kl"} {
		units, ok := h.store.Unlinked(uri)
		require.True(t, ok, "units for %s", uri)
		assert.Len(t, units, 1)
	}
}

func TestBuild_PartsAttachToLibraryNode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/lib.kl", "part \"lib_part.kl\";\nclass A {}")
	h.provider.WriteFile("/src/app/lib_part.kl", "class APart {}")

	g := h.build(t, "/src/app/lib.kl")
	require.Len(t, g.Nodes, 1, "parts do not create nodes")
	n := g.Nodes["package:app/lib.kl"]
	require.Len(t, n.Units, 2)

	units, ok := h.store.Unlinked("package:app/lib.kl")
	require.True(t, ok)
	assert.Len(t, units, 2, "part units registered under the library URI")
}

func TestBuild_PlatformURIsProduceNoNodes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/a.kl", "import \"std:core\";\nclass A {}")

	g := h.build(t, "/src/app/a.kl")
	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Nodes["package:app/a.kl"].Deps)
}

func TestBuild_CycleTerminates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/x.kl", "import \"y.kl\";\nclass X {}")
	h.provider.WriteFile("/src/app/y.kl", "import \"x.kl\";\nclass Y {}")

	g := h.build(t, "/src/app/x.kl")
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, []source.URI{"package:app/y.kl"}, g.Nodes["package:app/x.kl"].Deps)
	assert.Equal(t, []source.URI{"package:app/x.kl"}, g.Nodes["package:app/y.kl"].Deps)
}

func TestBuild_UnresolvableImportSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/a.kl", "import \"bogus:x\";\nclass A {}")

	g := h.build(t, "/src/app/a.kl")
	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Nodes["package:app/a.kl"].Deps)
}

// =============================================================================
// Dependency signatures
// =============================================================================

func TestSignature_StableAcrossBuilds(t *testing.T) {
	t.Parallel()
	write := func(h *harness) {
		h.provider.WriteFile("/src/app/a.kl", "import \"b.kl\";\nclass A {}")
		h.provider.WriteFile("/src/app/b.kl", "class B {}")
	}
	h1 := newHarness(t)
	write(h1)
	h2 := newHarness(t)
	write(h2)

	g1 := h1.build(t, "/src/app/a.kl")
	g2 := h2.build(t, "/src/app/a.kl")
	assert.Equal(t, g1.Signature(g1.Root, "sdk"), g2.Signature(g2.Root, "sdk"))
}

func TestSignature_DependsOnClosureAndSDK(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/a.kl", "import \"b.kl\";\nclass A {}")
	h.provider.WriteFile("/src/app/b.kl", "class B {}")
	g := h.build(t, "/src/app/a.kl")
	sig := g.Signature(g.Root, "sdk")

	// Changing a dependency's shape changes the root's signature.
	h2 := newHarness(t)
	h2.provider.WriteFile("/src/app/a.kl", "import \"b.kl\";\nclass A {}")
	h2.provider.WriteFile("/src/app/b.kl", "class B { x: Int; }")
	g2 := h2.build(t, "/src/app/a.kl")
	assert.NotEqual(t, sig, g2.Signature(g2.Root, "sdk"))

	// So does swapping the SDK bundle.
	assert.NotEqual(t, sig, g.Signature(g.Root, "other-sdk"))
}

func TestSignature_CycleMembersDifferOnlyByURI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.WriteFile("/src/app/x.kl", "import \"y.kl\";\nclass X {}")
	h.provider.WriteFile("/src/app/y.kl", "import \"x.kl\";\nclass Y {}")

	g := h.build(t, "/src/app/x.kl")
	sigX := g.Signature("package:app/x.kl", "sdk")
	sigY := g.Signature("package:app/y.kl", "sdk")

	// Same closure, different leading URI.
	assert.NotEqual(t, sigX, sigY)
	require.Len(t, g.Closure("package:app/x.kl"), 2)
	require.Len(t, g.Closure("package:app/y.kl"), 2)
}
