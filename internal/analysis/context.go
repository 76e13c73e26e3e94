package analysis

import (
	"context"
	"fmt"

	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

// Options configures the engine.
type Options struct {
	// StrongMode upgrades unresolved references to errors; lenient mode
	// reports them as warnings.
	StrongMode bool
	// Rules holds optional scripted lint rules, run after built-in checks.
	Rules *RuleSet
}

// Context computes diagnostics for a batch of sources against the summary
// store assembled for one analysis step. Contexts are ephemeral: the driver
// creates one per step and disposes it before emitting the result.
type Context struct {
	store    *summary.DataStore
	opts     Options
	contents map[string]string
	absent   map[string]bool
	disposed bool
}

// NewContext creates a context over a populated summary store.
func NewContext(store *summary.DataStore, opts Options) *Context {
	return &Context{
		store:    store,
		opts:     opts,
		contents: make(map[string]string),
		absent:   make(map[string]bool),
	}
}

// SetContents fixes the content the context analyzes for src.
func (c *Context) SetContents(src source.Source, content string) {
	c.contents[src.Path] = content
}

// MarkAbsent records that reading src failed and its content was coerced to
// empty. ComputeErrors surfaces this as a file-absent diagnostic.
func (c *Context) MarkAbsent(src source.Source) {
	c.absent[src.Path] = true
}

// ApplyChanges notifies the context of sources added to the analyzed set.
// Content for each must be supplied via SetContents before ComputeErrors.
func (c *Context) ApplyChanges(added []source.Source) {
	for _, src := range added {
		if _, ok := c.contents[src.Path]; !ok {
			c.contents[src.Path] = ""
		}
	}
}

// Dispose releases the context. Further ComputeErrors calls return nil.
func (c *Context) Dispose() {
	c.disposed = true
	c.contents = nil
	c.absent = nil
}

// ComputeErrors produces the diagnostics for src, in offset order: scan and
// parse errors, file absence, unresolvable directive targets, duplicate
// declarations, unresolved references, TODO markers, then scripted rules.
func (c *Context) ComputeErrors(ctx context.Context, src source.Source) []Error {
	if c.disposed {
		return nil
	}
	content := c.contents[src.Path]
	lines := frontend.NewLineInfo(content)

	var errs []Error
	report := func(code string, cat Category, offset, length int, format string, args ...any) {
		line, col := lines.Position(offset)
		errs = append(errs, Error{
			Code:     code,
			Category: cat,
			Message:  fmt.Sprintf(format, args...),
			Offset:   offset,
			Length:   length,
			Line:     line,
			Col:      col,
		})
	}

	listener := &collectingListener{report: func(offset int, message string) {
		report("syntax-error", CategorySyntax, offset, 0, "%s", message)
	}}
	unit := frontend.Parse(content, listener)

	if c.absent[src.Path] {
		report("file-absent", CategoryError, 0, 0, "file %s cannot be read", src.Path)
	}

	c.checkDirectives(src, unit, report)
	checkDuplicates(unit, report)
	c.checkReferences(src, unit, report)
	errs = append(errs, findTodos(content, lines)...)

	if c.opts.Rules != nil {
		errs = append(errs, c.opts.Rules.Run(ctx, src.Path, unit, lines)...)
	}

	sortErrors(errs)
	return errs
}

type reportFunc func(code string, cat Category, offset, length int, format string, args ...any)

// checkDirectives flags import and export directives whose targets have no
// units in the store, or whose targets could not be read. Platform URIs are
// served by the SDK bundle. Part directives are skipped; a part whose file is
// absent is not reported.
func (c *Context) checkDirectives(src source.Source, unit *frontend.Unit, report reportFunc) {
	for _, d := range unit.Directives {
		if d.Kind == frontend.PartDirective {
			continue
		}
		resolved := c.store.Resolve(src.URI, d.URI)
		if resolved.IsPlatform() {
			if !c.store.HasLinked(resolved) {
				report("uri-does-not-exist", CategoryError, d.Offset, len(d.URI),
					"platform library %q does not exist", d.URI)
			}
			continue
		}
		if _, ok := c.store.Unlinked(resolved); !ok || c.store.IsMissing(resolved) {
			report("uri-does-not-exist", CategoryError, d.Offset, len(d.URI),
				"target of %s %q does not exist", d.Kind, d.URI)
		}
	}
}

func checkDuplicates(unit *frontend.Unit, report reportFunc) {
	seen := make(map[string]bool)
	for _, d := range unit.Decls {
		if d.Name == "" {
			continue
		}
		if seen[d.Name] {
			report("duplicate-declaration", CategoryError, d.Offset, len(d.Name),
				"%q is already declared in this unit", d.Name)
			continue
		}
		seen[d.Name] = true
	}
}

// checkReferences flags names that did not resolve during linking. Strong
// mode reports errors, lenient mode warnings. Names a strong-mode link left
// unresolved because several imports export them surface here too.
func (c *Context) checkReferences(src source.Source, unit *frontend.Unit, report reportFunc) {
	linked, ok := c.store.Linked(src.URI)
	if !ok {
		return
	}
	cat := CategoryWarning
	if c.opts.StrongMode {
		cat = CategoryError
	}
	for _, ref := range unit.References {
		if _, ok := linked.Resolutions[ref.Name]; ok {
			continue
		}
		report("unresolved-reference", cat, ref.Offset, len(ref.Name),
			"%q cannot be resolved", ref.Name)
	}
}

type collectingListener struct {
	report func(offset int, message string)
}

func (l *collectingListener) Error(offset int, message string) {
	l.report(offset, message)
}
