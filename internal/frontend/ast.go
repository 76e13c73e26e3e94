// Package frontend scans and parses the modular source language into an
// unresolved syntax tree. It performs no name resolution; references are
// recorded as-is for the linker and the diagnostics engine to resolve.
package frontend

import "sort"

// DirectiveKind distinguishes the three library-reference directives.
type DirectiveKind int

const (
	ImportDirective DirectiveKind = iota
	ExportDirective
	PartDirective
)

func (k DirectiveKind) String() string {
	switch k {
	case ImportDirective:
		return "import"
	case ExportDirective:
		return "export"
	case PartDirective:
		return "part"
	}
	return "unknown"
}

// Directive is one import/export/part reference to another unit.
type Directive struct {
	Kind   DirectiveKind
	URI    string
	Offset int
}

// DeclKind is the kind of a top-level declaration.
type DeclKind string

const (
	ClassDecl DeclKind = "class"
	FuncDecl  DeclKind = "func"
	LetDecl   DeclKind = "let"
)

// Param is one function or method parameter.
type Param struct {
	Name string
	Type string
}

// Member is a field or method inside a class body.
type Member struct {
	Name   string
	Kind   string // "field" or "method"
	Type   string
	Params []Param
}

// Decl is one top-level declaration. Bodies are not retained; only the
// externally visible shape plus the references found inside the body.
type Decl struct {
	Kind    DeclKind
	Name    string
	Offset  int
	Type    string // return type for func, declared type for let
	Extends string // superclass name, classes only
	Params  []Param
	Members []Member
}

// Ref is one unresolved reference to a top-level name.
type Ref struct {
	Name   string
	Offset int
}

// Unit is the unresolved syntax tree of one compilation unit.
type Unit struct {
	Directives []Directive
	Decls      []*Decl
	References []Ref
	LineInfo   *LineInfo
}

// ReferencedURIs partitions the unit's directives by kind, preserving order
// and dropping duplicates within each kind.
func (u *Unit) ReferencedURIs() (imported, exported, parted []string) {
	seen := make(map[string]bool)
	add := func(dst *[]string, uri string, kind DirectiveKind) {
		key := kind.String() + " " + uri
		if uri == "" || seen[key] {
			return
		}
		seen[key] = true
		*dst = append(*dst, uri)
	}
	for _, d := range u.Directives {
		switch d.Kind {
		case ImportDirective:
			add(&imported, d.URI, d.Kind)
		case ExportDirective:
			add(&exported, d.URI, d.Kind)
		case PartDirective:
			add(&parted, d.URI, d.Kind)
		}
	}
	return imported, exported, parted
}

// ReferencedNames returns the sorted, deduplicated reference names.
func (u *Unit) ReferencedNames() []string {
	set := make(map[string]bool, len(u.References))
	for _, r := range u.References {
		set[r.Name] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LineInfo maps byte offsets to 1-based line and column numbers.
type LineInfo struct {
	starts []int // offset of the first byte of each line
}

// NewLineInfo computes line starts for content.
func NewLineInfo(content string) *LineInfo {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineInfo{starts: starts}
}

// Position returns the 1-based line and column of offset.
func (li *LineInfo) Position(offset int) (line, col int) {
	i := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, offset - li.starts[i] + 1
}

// LineCount returns the number of lines.
func (li *LineInfo) LineCount() int {
	return len(li.starts)
}

// ErrorListener receives scan and parse diagnostics.
type ErrorListener interface {
	Error(offset int, message string)
}

// NullListener discards diagnostics. Used by the unlinked-summary path,
// where real diagnostics are produced later by the analysis engine.
type NullListener struct{}

func (NullListener) Error(int, string) {}
