package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

// newStore builds a data store with the SDK bundle plus the given units,
// keyed by URI. Directive texts in the fixtures are absolute URIs, so no
// extra resolutions are needed.
func newStore(t *testing.T, units map[source.URI]string) *summary.DataStore {
	t.Helper()
	ds := summary.NewDataStore()
	ds.AddBundle(summary.BuiltinSDK().Bundle)
	for uri, content := range units {
		unit := frontend.Parse(content, frontend.NullListener{})
		ds.AddUnits(uri, []*summary.UnlinkedUnit{summary.FromUnit(uri, unit)})
	}
	return ds
}

func linkOne(t *testing.T, ds *summary.DataStore, uri source.URI, strongMode bool) *summary.LinkedLibrary {
	t.Helper()
	out, err := Link([]source.URI{uri}, ds.Linked, ds.Unlinked, ds.Resolve, strongMode)
	require.NoError(t, err)
	require.Contains(t, out, uri)
	return out[uri]
}

// =============================================================================
// Resolution
// =============================================================================

func TestLink_OwnAndImportedNames(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/a.kl": "import \"package:app/b.kl\";\nfunc main(): Void { helper(); own(); }\nfunc own(): Void { }",
		"package:app/b.kl": "func helper(): Void { }",
	})

	lib := linkOne(t, ds, "package:app/a.kl", true)
	assert.Equal(t, "package:app/a.kl", lib.Resolutions["own"])
	assert.Equal(t, "package:app/b.kl", lib.Resolutions["helper"])
	assert.Equal(t, []string{"package:app/b.kl"}, lib.Dependencies)
}

func TestLink_CoreIsImplicitlyImported(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/a.kl": "func main(): Void { print(); }",
	})

	lib := linkOne(t, ds, "package:app/a.kl", true)
	assert.Equal(t, "std:core", lib.Resolutions["print"])
	assert.Equal(t, "std:core", lib.Resolutions["Void"])
}

func TestLink_UnknownNameLeftUnresolved(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/a.kl": "func main(): Void { nowhere(); }",
	})

	lib := linkOne(t, ds, "package:app/a.kl", true)
	_, ok := lib.Resolutions["nowhere"]
	assert.False(t, ok)
}

// =============================================================================
// Ambiguity
// =============================================================================

func TestLink_AmbiguousNameStrongVsLenient(t *testing.T) {
	t.Parallel()
	units := map[source.URI]string{
		"package:app/a.kl": "import \"package:app/b.kl\";\nimport \"package:app/c.kl\";\nfunc main(): Void { shared(); }",
		"package:app/b.kl": "func shared(): Void { }",
		"package:app/c.kl": "func shared(): Void { }",
	}

	strong := linkOne(t, newStore(t, units), "package:app/a.kl", true)
	_, ok := strong.Resolutions["shared"]
	assert.False(t, ok, "strong mode leaves ambiguous names unresolved")

	lenient := linkOne(t, newStore(t, units), "package:app/a.kl", false)
	assert.Equal(t, "package:app/c.kl", lenient.Resolutions["shared"], "lenient mode: last import wins")
}

func TestLink_SameLibraryTwiceIsNotAmbiguous(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/a.kl": "import \"package:app/b.kl\";\nimport \"package:app/b.kl\";\nfunc main(): Void { shared(); }",
		"package:app/b.kl": "func shared(): Void { }",
	})

	lib := linkOne(t, ds, "package:app/a.kl", true)
	assert.Equal(t, "package:app/b.kl", lib.Resolutions["shared"])
}

// =============================================================================
// Export namespaces
// =============================================================================

func TestLink_TransitiveExports(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/a.kl": "import \"package:app/facade.kl\";\nfunc main(): Void { deep(); }",
		"package:app/facade.kl": "export \"package:app/impl.kl\";\nfunc shallow(): Void { }",
		"package:app/impl.kl":   "func deep(): Void { }",
	})

	lib := linkOne(t, ds, "package:app/a.kl", true)
	assert.Equal(t, "package:app/facade.kl", lib.Resolutions["deep"],
		"a re-exported name resolves to the exporting facade")

	facade := linkOne(t, ds, "package:app/facade.kl", true)
	assert.ElementsMatch(t, []string{"shallow", "deep"}, facade.Exports)
}

func TestLink_ExportCycleTerminates(t *testing.T) {
	t.Parallel()
	ds := newStore(t, map[source.URI]string{
		"package:app/x.kl": "export \"package:app/y.kl\";\nfunc fx(): Void { }",
		"package:app/y.kl": "export \"package:app/x.kl\";\nfunc fy(): Void { }",
	})

	lib := linkOne(t, ds, "package:app/x.kl", true)
	assert.Contains(t, lib.Exports, "fx")
	assert.Contains(t, lib.Exports, "fy")
}

// =============================================================================
// Internal consistency
// =============================================================================

func TestLink_MissingUnitFailsFast(t *testing.T) {
	t.Parallel()
	ds := newStore(t, nil)
	_, err := Link([]source.URI{"package:app/ghost.kl"}, ds.Linked, ds.Unlinked, ds.Resolve, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingUnit)
}
