package summary

import "github.com/jward/keel/internal/source"

// DataStore is the in-memory summary index seeded for one analysis step.
// It is keyed by library URI, populated by the active library-graph
// traversal (which knows the correct URI for every unit it loads) and by
// the pre-linked SDK bundle.
type DataStore struct {
	units    map[source.URI][]*UnlinkedUnit
	linked   map[source.URI]*LinkedLibrary
	resolved map[source.URI]map[string]source.URI
	missing  map[source.URI]bool
}

func NewDataStore() *DataStore {
	return &DataStore{
		units:    make(map[source.URI][]*UnlinkedUnit),
		linked:   make(map[source.URI]*LinkedLibrary),
		resolved: make(map[source.URI]map[string]source.URI),
		missing:  make(map[source.URI]bool),
	}
}

// AddUnits registers the units of a library (its defining unit followed by
// its parts) under the library URI.
func (d *DataStore) AddUnits(uri source.URI, units []*UnlinkedUnit) {
	d.units[uri] = units
}

// AddLinked registers a linked library.
func (d *DataStore) AddLinked(lib *LinkedLibrary) {
	d.linked[source.URI(lib.URI)] = lib
}

// AddBundle registers every summary in a pre-assembled bundle under its
// embedded URI. Only the SDK bundle is loaded this way; its URIs are
// authoritative because it is assembled once from known sources.
func (d *DataStore) AddBundle(b *Bundle) {
	for _, u := range b.UnlinkedUnits {
		uri := source.URI(u.URI)
		d.units[uri] = append(d.units[uri], u)
	}
	for _, l := range b.LinkedLibraries {
		d.linked[source.URI(l.URI)] = l
	}
}

// AddResolution records that directive text inside the library at base
// resolved to dep. Unlinked units carry directive texts verbatim, which may
// be relative; the linker maps them back to URIs through these entries.
func (d *DataStore) AddResolution(base source.URI, text string, dep source.URI) {
	byText, ok := d.resolved[base]
	if !ok {
		byText = make(map[string]source.URI)
		d.resolved[base] = byText
	}
	byText[text] = dep
}

// Resolve maps a directive text inside the library at base to the URI the
// traversal resolved it at. Texts without an entry are returned as-is; they
// are already absolute (platform URIs, SDK-internal references).
func (d *DataStore) Resolve(base source.URI, text string) source.URI {
	if dep, ok := d.resolved[base][text]; ok {
		return dep
	}
	return source.URI(text)
}

// MarkMissing records that the file behind uri could not be read. Its unit
// is still registered (with empty content), so this flag is how the
// diagnostics engine distinguishes an absent target from an empty one.
func (d *DataStore) MarkMissing(uri source.URI) {
	d.missing[uri] = true
}

// IsMissing reports whether the file behind uri could not be read.
func (d *DataStore) IsMissing(uri source.URI) bool {
	return d.missing[uri]
}

// Unlinked returns the units of the library, if registered.
func (d *DataStore) Unlinked(uri source.URI) ([]*UnlinkedUnit, bool) {
	units, ok := d.units[uri]
	return units, ok
}

// Linked returns the linked summary of the library, if registered.
func (d *DataStore) Linked(uri source.URI) (*LinkedLibrary, bool) {
	lib, ok := d.linked[uri]
	return lib, ok
}

// HasLinked reports whether the library has a linked summary registered.
func (d *DataStore) HasLinked(uri source.URI) bool {
	_, ok := d.linked[uri]
	return ok
}
