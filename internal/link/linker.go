// Package link resolves libraries against their dependencies' unlinked
// summaries, producing linked summaries. It never touches files or the byte
// store; both lookups consult the in-memory data store populated by the
// library-graph traversal.
package link

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

// ErrMissingUnit reports an unlinked unit absent from the summary store. The
// store is populated by the graph traversal before linking, so a miss is an
// internal-consistency failure, not a user error.
var ErrMissingUnit = errors.New("unlinked unit missing from summary store")

// LinkedLookup returns the already-linked summary of a library, if present.
type LinkedLookup func(uri source.URI) (*summary.LinkedLibrary, bool)

// UnlinkedLookup returns the units of a library, defining unit first.
type UnlinkedLookup func(uri source.URI) ([]*summary.UnlinkedUnit, bool)

// ResolveFunc maps a directive text inside the library at base to a URI.
// Unlinked units store directive texts verbatim, which may be relative.
type ResolveFunc func(base source.URI, text string) source.URI

// Link resolves each root library's references against its imports and
// returns the linked summaries keyed by URI.
//
// A name is searched in the library's own declarations first, then in the
// export namespaces of its imports (the platform core library is an implicit
// import of every library). In strong mode a name exported by more than one
// import is ambiguous and left unresolved; otherwise the last import wins.
func Link(roots []source.URI, lookupLinked LinkedLookup, lookupUnlinked UnlinkedLookup, resolve ResolveFunc, strongMode bool) (map[source.URI]*summary.LinkedLibrary, error) {
	l := &linker{
		lookupLinked:   lookupLinked,
		lookupUnlinked: lookupUnlinked,
		resolve:        resolve,
		strongMode:     strongMode,
		exports:        make(map[source.URI][]string),
	}
	out := make(map[source.URI]*summary.LinkedLibrary, len(roots))
	for _, uri := range roots {
		lib, err := l.linkOne(uri)
		if err != nil {
			return nil, err
		}
		out[uri] = lib
	}
	return out, nil
}

type linker struct {
	lookupLinked   LinkedLookup
	lookupUnlinked UnlinkedLookup
	resolve        ResolveFunc
	strongMode     bool
	exports        map[source.URI][]string
}

func (l *linker) linkOne(uri source.URI) (*summary.LinkedLibrary, error) {
	units, ok := l.lookupUnlinked(uri)
	if !ok || len(units) == 0 {
		return nil, fmt.Errorf("link %s: %w", uri, ErrMissingUnit)
	}
	defining := units[0]

	imports := []source.URI{source.CoreLibrary}
	for _, imp := range defining.ImportedURIs {
		imports = append(imports, l.resolve(uri, imp))
	}

	// ownNames maps each name declared in this library, across all units.
	ownNames := make(map[string]bool)
	for _, u := range units {
		for _, name := range u.TopLevelNames() {
			ownNames[name] = true
		}
	}

	// providers maps each importable name to the libraries exporting it, in
	// import order.
	providers := make(map[string][]source.URI)
	for _, imp := range imports {
		ns, err := l.exportNamespace(imp, make(map[source.URI]bool))
		if err != nil {
			return nil, err
		}
		for _, name := range ns {
			providers[name] = append(providers[name], imp)
		}
	}

	resolutions := make(map[string]string)
	for _, u := range units {
		for _, name := range u.References {
			if ownNames[name] {
				resolutions[name] = string(uri)
				continue
			}
			from, ok := l.resolveImported(providers[name])
			if !ok {
				continue
			}
			resolutions[name] = string(from)
		}
	}

	exports, err := l.exportNamespace(uri, make(map[source.URI]bool))
	if err != nil {
		return nil, err
	}

	deps := make([]string, 0, len(imports)-1)
	for _, imp := range imports[1:] {
		deps = append(deps, string(imp))
	}

	return &summary.LinkedLibrary{
		URI:          string(uri),
		Dependencies: deps,
		Resolutions:  resolutions,
		Exports:      exports,
	}, nil
}

// resolveImported picks the defining library among the importers of a name.
// Duplicated providers collapse first so importing the same library twice is
// not an ambiguity.
func (l *linker) resolveImported(from []source.URI) (source.URI, bool) {
	if len(from) == 0 {
		return "", false
	}
	distinct := from[:1]
	for _, u := range from[1:] {
		if u != distinct[len(distinct)-1] {
			distinct = append(distinct, u)
		}
	}
	if len(distinct) > 1 && l.strongMode {
		return "", false
	}
	return distinct[len(distinct)-1], true
}

// exportNamespace computes the sorted set of names a library makes visible
// to importers: its own declarations plus everything re-exported through its
// export directives. visiting guards against export cycles.
func (l *linker) exportNamespace(uri source.URI, visiting map[source.URI]bool) ([]string, error) {
	if visiting[uri] {
		return nil, nil
	}
	visiting[uri] = true
	if ns, ok := l.exports[uri]; ok {
		return ns, nil
	}

	// A pre-linked summary already carries its export namespace. The SDK's
	// platform libraries are served this way.
	if lib, ok := l.lookupLinked(uri); ok && len(lib.Exports) > 0 {
		l.exports[uri] = lib.Exports
		return lib.Exports, nil
	}

	units, ok := l.lookupUnlinked(uri)
	if !ok || len(units) == 0 {
		// Platform URIs outside the SDK bundle never reach the traversal, so
		// their absence is a user error the diagnostics engine reports, not
		// an internal inconsistency.
		if uri.IsPlatform() {
			return nil, nil
		}
		return nil, fmt.Errorf("export namespace of %s: %w", uri, ErrMissingUnit)
	}

	set := make(map[string]bool)
	for _, u := range units {
		for _, name := range u.TopLevelNames() {
			set[name] = true
		}
	}
	for _, exp := range units[0].ExportedURIs {
		ns, err := l.exportNamespace(l.resolve(uri, exp), visiting)
		if err != nil {
			return nil, err
		}
		for _, name := range ns {
			set[name] = true
		}
	}

	ns := make([]string, 0, len(set))
	for name := range set {
		ns = append(ns, name)
	}
	sort.Strings(ns)
	l.exports[uri] = ns
	return ns, nil
}
