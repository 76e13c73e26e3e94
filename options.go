package keel

import "io/fs"

// Options configures analysis behavior for a Driver.
type Options struct {
	// StrongMode enables strict typing: unresolved references become errors
	// and names exported by more than one import are ambiguous rather than
	// last-import-wins.
	StrongMode bool

	// RuleScripts lists Risor lint scripts, as paths into ScriptFS, run
	// against every analyzed unit.
	RuleScripts []string

	// ScriptFS is the file system RuleScripts are read from.
	ScriptFS fs.FS
}
