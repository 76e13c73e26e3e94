package summary

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// apiSignature computes a deterministic hash over the unit's externally
// visible shape: directives and declaration signatures. Bodies, initializer
// expressions, and the unit's own URI are excluded, so the signature is
// insensitive to edits that cannot affect downstream libraries.
func apiSignature(u *UnlinkedUnit) string {
	h := sha256.New()

	// Directives in source order; reordering imports is an API change
	// because it can change which export wins a name collision.
	for _, uri := range u.ImportedURIs {
		fmt.Fprintf(h, "import:%s\n", uri)
	}
	for _, uri := range u.ExportedURIs {
		fmt.Fprintf(h, "export:%s\n", uri)
	}
	for _, uri := range u.PartURIs {
		fmt.Fprintf(h, "part:%s\n", uri)
	}

	// Declarations sorted by (name, kind) so formatting-only reordering
	// does not invalidate dependents.
	decls := make([]Declaration, len(u.Declarations))
	copy(decls, u.Declarations)
	sort.Slice(decls, func(i, j int) bool {
		if decls[i].Name != decls[j].Name {
			return decls[i].Name < decls[j].Name
		}
		return decls[i].Kind < decls[j].Kind
	})
	for _, d := range decls {
		fmt.Fprintf(h, "decl:%s:%s:%s:%s\n", d.Name, d.Kind, d.Type, d.Extends)
		for _, p := range d.Params {
			fmt.Fprintf(h, "param:%s:%s\n", p.Name, p.Type)
		}

		members := make([]Member, len(d.Members))
		copy(members, d.Members)
		sort.Slice(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return members[i].Kind < members[j].Kind
		})
		for _, m := range members {
			fmt.Fprintf(h, "member:%s:%s:%s\n", m.Name, m.Kind, m.Type)
			for _, p := range m.Params {
				fmt.Fprintf(h, "mparam:%s:%s\n", p.Name, p.Type)
			}
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
