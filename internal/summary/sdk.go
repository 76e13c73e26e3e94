package summary

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// SDK is a pre-linked bundle of the platform's core libraries, supplied to
// the driver at construction. Platform URIs are served from here and never
// resolve to files.
type SDK struct {
	Bundle       *Bundle
	APISignature string
}

// NewSDK wraps a pre-assembled bundle, deriving the SDK-wide apiSignature
// from the sorted signatures of its units.
func NewSDK(bundle *Bundle) *SDK {
	sigs := make([]string, 0, len(bundle.UnlinkedUnits))
	for _, u := range bundle.UnlinkedUnits {
		sigs = append(sigs, u.APISignature)
	}
	sort.Strings(sigs)
	h := sha256.New()
	for _, sig := range sigs {
		fmt.Fprintf(h, "%s\n", sig)
	}
	return &SDK{Bundle: bundle, APISignature: fmt.Sprintf("%x", h.Sum(nil))}
}

// BuiltinSDK assembles the default platform bundle: the std:core library
// with the builtin types and functions every unit may reference without an
// import.
func BuiltinSDK() *SDK {
	core := &UnlinkedUnit{
		URI: "std:core",
		Declarations: []Declaration{
			{Name: "Bool", Kind: "class"},
			{Name: "Int", Kind: "class"},
			{Name: "Float", Kind: "class"},
			{Name: "String", Kind: "class"},
			{Name: "Void", Kind: "class"},
			{Name: "List", Kind: "class"},
			{Name: "Map", Kind: "class"},
			{Name: "print", Kind: "func", Type: "Void", Params: []Param{{Name: "value", Type: "String"}}},
			{Name: "assert", Kind: "func", Type: "Void", Params: []Param{{Name: "condition", Type: "Bool"}}},
		},
	}
	core.APISignature = apiSignature(core)

	linked := &LinkedLibrary{
		URI:     "std:core",
		Exports: core.TopLevelNames(),
	}

	return NewSDK(&Bundle{
		UnlinkedUnits:   []*UnlinkedUnit{core},
		LinkedLibraries: []*LinkedLibrary{linked},
	})
}
