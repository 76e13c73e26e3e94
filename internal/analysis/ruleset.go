package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/keel/internal/frontend"
)

// RuleSet holds scripted lint rules. Each rule is a Risor script evaluated
// once per analyzed file with the unit's facts as globals and a report host
// function for emitting diagnostics.
type RuleSet struct {
	scripts []ruleScript
}

type ruleScript struct {
	name   string
	source string
}

// LoadRules reads rule scripts from fsys. Paths are fs.FS paths.
func LoadRules(fsys fs.FS, paths []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("load rule %s: %w", path, err)
		}
		rs.scripts = append(rs.scripts, ruleScript{name: path, source: string(data)})
	}
	return rs, nil
}

// Run evaluates every rule against the unit and returns the diagnostics they
// reported. A failing script produces a single rule-failure diagnostic
// instead of aborting the analysis pass.
func (r *RuleSet) Run(ctx context.Context, filePath string, unit *frontend.Unit, lines *frontend.LineInfo) []Error {
	if r == nil || len(r.scripts) == 0 {
		return nil
	}

	var mu sync.Mutex
	var errs []Error
	reportFn := object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("report", 3, len(args))
		}
		code, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("report: code must be a string, got %s", args[0].Type())
		}
		message, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("report: message must be a string, got %s", args[1].Type())
		}
		offset, ok := args[2].(*object.Int)
		if !ok {
			return object.Errorf("report: offset must be an int, got %s", args[2].Type())
		}
		line, col := lines.Position(int(offset.Value()))
		mu.Lock()
		errs = append(errs, Error{
			Code:     code.Value(),
			Category: CategoryLint,
			Message:  message.Value(),
			Offset:   int(offset.Value()),
			Line:     line,
			Col:      col,
		})
		mu.Unlock()
		return object.Nil
	})

	decls := declList(unit)
	refs := refList(unit)

	for _, script := range r.scripts {
		opts := []risor.Option{
			risor.WithGlobal("file_path", filePath),
			risor.WithGlobal("decls", decls),
			risor.WithGlobal("refs", refs),
			risor.WithGlobal("report", reportFn),
		}
		if _, err := risor.Eval(ctx, script.source, opts...); err != nil {
			errs = append(errs, Error{
				Code:     "rule-failure",
				Category: CategoryWarning,
				Message:  fmt.Sprintf("rule %s: %v", script.name, err),
				Line:     1,
				Col:      1,
			})
		}
	}
	return errs
}

func declList(unit *frontend.Unit) *object.List {
	items := make([]object.Object, 0, len(unit.Decls))
	for _, d := range unit.Decls {
		m := map[string]object.Object{
			"name":    object.NewString(d.Name),
			"kind":    object.NewString(string(d.Kind)),
			"type":    object.NewString(d.Type),
			"extends": object.NewString(d.Extends),
			"offset":  object.NewInt(int64(d.Offset)),
			"params":  paramList(d.Params),
			"members": memberList(d.Members),
		}
		items = append(items, object.NewMap(m))
	}
	return object.NewList(items)
}

func memberList(members []frontend.Member) *object.List {
	items := make([]object.Object, 0, len(members))
	for _, m := range members {
		items = append(items, object.NewMap(map[string]object.Object{
			"name":   object.NewString(m.Name),
			"kind":   object.NewString(m.Kind),
			"type":   object.NewString(m.Type),
			"params": paramList(m.Params),
		}))
	}
	return object.NewList(items)
}

func paramList(params []frontend.Param) *object.List {
	items := make([]object.Object, 0, len(params))
	for _, p := range params {
		items = append(items, object.NewMap(map[string]object.Object{
			"name": object.NewString(p.Name),
			"type": object.NewString(p.Type),
		}))
	}
	return object.NewList(items)
}

func refList(unit *frontend.Unit) *object.List {
	items := make([]object.Object, 0, len(unit.References))
	for _, r := range unit.References {
		items = append(items, object.NewMap(map[string]object.Object{
			"name":   object.NewString(r.Name),
			"offset": object.NewInt(int64(r.Offset)),
		}))
	}
	return object.NewList(items)
}
