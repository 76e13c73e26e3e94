// Package libgraph builds the transitive library graph over import, export,
// and part references, and computes the dependency signature that keys linked
// summaries and diagnostics in the byte store.
package libgraph

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/jward/keel/internal/filestate"
	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

// Node is one library in the graph: its units (the defining unit followed by
// its parts) and the URIs of its direct dependencies. Children are referenced
// by URI, not by pointer, so the graph's node map is the sole owner and
// import cycles create no ownership cycles.
type Node struct {
	URI   source.URI
	Units []*summary.UnlinkedUnit
	Deps  []source.URI
}

// Graph is the library graph built for one analysis step. Nodes are equated
// by URI.
type Graph struct {
	Root  source.URI
	Nodes map[source.URI]*Node
}

// Builder constructs graphs. Unlinked summaries come from the cache; every
// unit loaded during the traversal is registered in the data store under the
// URI of the library the traversal resolved it into (parts under their
// library's URI), which is authoritative even when the blob's embedded URI
// belongs to a content twin.
type Builder struct {
	Cache *summary.Cache
	Store *summary.DataStore
}

// Build constructs the graph rooted at the library defined by root. Platform
// URIs are served by the SDK bundle and produce no nodes. Import and export
// URIs that fail to resolve produce no nodes either; each is registered as an
// empty, missing unit under its verbatim text, so linking sees an empty
// namespace and the analysis engine reports the directive.
func (b *Builder) Build(root *filestate.FileHandle) (*Graph, error) {
	g := &Graph{Root: root.URI(), Nodes: make(map[source.URI]*Node)}
	b.node(g, root)
	return g, nil
}

// node returns the graph node for the library defined by f, creating it on
// first visit. The node is registered in the map before its dependencies are
// explored, which terminates recursion on import cycles.
func (b *Builder) node(g *Graph, f *filestate.FileHandle) *Node {
	uri := f.URI()
	if n, ok := g.Nodes[uri]; ok {
		return n
	}
	n := &Node{URI: uri}
	g.Nodes[uri] = n

	defining := b.Cache.Unlinked(f)
	n.Units = append(n.Units, defining)
	if f.Absent() {
		b.Store.MarkMissing(uri)
	}

	for _, part := range defining.PartURIs {
		ph, err := f.ResolveURI(part)
		if err != nil {
			continue
		}
		b.Store.AddResolution(uri, part, ph.URI())
		n.Units = append(n.Units, b.Cache.Unlinked(ph))
		if ph.Absent() {
			b.Store.MarkMissing(ph.URI())
		}
	}
	b.Store.AddUnits(uri, n.Units)

	seen := make(map[source.URI]bool)
	for _, text := range append(append([]string{}, defining.ImportedURIs...), defining.ExportedURIs...) {
		dh, err := f.ResolveURI(text)
		if err != nil {
			bad := source.URI(text)
			b.Store.AddUnits(bad, []*summary.UnlinkedUnit{{URI: text}})
			b.Store.MarkMissing(bad)
			continue
		}
		dep := dh.URI()
		b.Store.AddResolution(uri, text, dep)
		if dep.IsPlatform() || dep == uri || seen[dep] {
			continue
		}
		seen[dep] = true
		n.Deps = append(n.Deps, dep)
		b.node(g, dh)
	}
	return n
}

// Closure returns the transitive dependency closure of uri, including uri
// itself, in unspecified order.
func (g *Graph) Closure(uri source.URI) []*Node {
	var closure []*Node
	visited := make(map[source.URI]bool)
	var walk func(u source.URI)
	walk = func(u source.URI) {
		if visited[u] {
			return
		}
		visited[u] = true
		n, ok := g.Nodes[u]
		if !ok {
			return
		}
		closure = append(closure, n)
		for _, d := range n.Deps {
			walk(d)
		}
	}
	walk(uri)
	return closure
}

// Signature computes the dependency signature of the library at uri: a
// digest over the library's own URI followed by the sorted apiSignatures of
// every unit in its transitive closure plus the SDK signature. Sorting makes
// the digest independent of traversal order.
func (g *Graph) Signature(uri source.URI, sdkSignature string) string {
	var sigs []string
	for _, n := range g.Closure(uri) {
		for _, u := range n.Units {
			sigs = append(sigs, u.APISignature)
		}
	}
	sigs = append(sigs, sdkSignature)
	sort.Strings(sigs)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n", uri)
	for _, s := range sigs {
		fmt.Fprintf(h, "%s\n", s)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
