// Package summary derives, serializes, and caches the compact per-unit
// summaries the driver works with: unlinked summaries describing one
// compilation unit in isolation, and linked summaries resolving a library
// against its dependencies.
package summary

import (
	"encoding/json"
	"fmt"

	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
)

// Declaration is the externally visible shape of one top-level declaration.
type Declaration struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Type    string   `json:"type,omitempty"`
	Extends string   `json:"extends,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Members []Member `json:"members,omitempty"`
}

type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Member struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Type   string  `json:"type,omitempty"`
	Params []Param `json:"params,omitempty"`
}

// UnlinkedUnit is the unlinked summary of one compilation unit. The URI
// records which source the unit was serialized against; because the blob is
// stored under a content-derived key, a content twin read back from the
// store may carry its twin's URI. Consumers register units in a DataStore
// under the URI of the active traversal, never the embedded one.
type UnlinkedUnit struct {
	URI          string        `json:"uri"`
	APISignature string        `json:"apiSignature"`
	ImportedURIs []string      `json:"imported,omitempty"`
	ExportedURIs []string      `json:"exported,omitempty"`
	PartURIs     []string      `json:"parts,omitempty"`
	Declarations []Declaration `json:"declarations,omitempty"`
	References   []string      `json:"references,omitempty"`
}

// LinkedLibrary is the linked summary of one library: its top-level
// references resolved to the URIs of the libraries defining them.
type LinkedLibrary struct {
	URI          string            `json:"uri"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Resolutions  map[string]string `json:"resolutions,omitempty"`
	Exports      []string          `json:"exports,omitempty"`
}

// Bundle packages summaries for storage. The byte-store schema stores
// exactly one UnlinkedUnit per ".unlinked" blob and exactly one
// LinkedLibrary per ".linked" blob; the SDK bundle carries many of both.
type Bundle struct {
	UnlinkedUnits   []*UnlinkedUnit  `json:"unlinked,omitempty"`
	LinkedLibraries []*LinkedLibrary `json:"linked,omitempty"`
}

// Encode serializes the bundle. Encoding is deterministic for a fixed
// bundle value. Content twins share one blob because the unlinked key is
// content-derived; the blob embeds the URI of whichever twin wrote it first.
func (b *Bundle) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle deserializes a bundle blob.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// FromUnit serializes an unresolved unit into its unlinked summary. The
// apiSignature covers only the unit's externally visible shape, so edits
// confined to bodies do not change it.
func FromUnit(uri source.URI, unit *frontend.Unit) *UnlinkedUnit {
	imported, exported, parted := unit.ReferencedURIs()
	u := &UnlinkedUnit{
		URI:          string(uri),
		ImportedURIs: imported,
		ExportedURIs: exported,
		PartURIs:     parted,
		References:   unit.ReferencedNames(),
	}
	for _, d := range unit.Decls {
		decl := Declaration{
			Name:    d.Name,
			Kind:    string(d.Kind),
			Type:    d.Type,
			Extends: d.Extends,
		}
		for _, p := range d.Params {
			decl.Params = append(decl.Params, Param{Name: p.Name, Type: p.Type})
		}
		for _, m := range d.Members {
			member := Member{Name: m.Name, Kind: m.Kind, Type: m.Type}
			for _, p := range m.Params {
				member.Params = append(member.Params, Param{Name: p.Name, Type: p.Type})
			}
			decl.Members = append(decl.Members, member)
		}
		u.Declarations = append(u.Declarations, decl)
	}
	u.APISignature = apiSignature(u)
	return u
}

// TopLevelNames returns the names declared by the unit, in declaration order.
func (u *UnlinkedUnit) TopLevelNames() []string {
	names := make([]string, 0, len(u.Declarations))
	for _, d := range u.Declarations {
		if d.Name != "" {
			names = append(names, d.Name)
		}
	}
	return names
}
