package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jward/keel"
	"github.com/jward/keel/internal/analysis"
)

// fileReport is the CLI view of one analyzed file.
type fileReport struct {
	Path   string           `json:"path"`
	URI    string           `json:"uri"`
	Errors []analysis.Error `json:"errors"`
}

func reportOf(res *keel.AnalysisResult) fileReport {
	errs := res.Errors
	if errs == nil {
		errs = []analysis.Error{}
	}
	return fileReport{Path: res.Path, URI: string(res.URI), Errors: errs}
}

// formatReportsText writes "path:line:col category: message [code]" lines,
// files in path order.
func formatReportsText(w io.Writer, reports []fileReport) {
	sorted := append([]fileReport(nil), reports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, r := range sorted {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "%s:%d:%d %s: %s [%s]\n", r.Path, e.Line, e.Col, e.Category, e.Message, e.Code)
		}
	}
}

func formatReportsJSON(w io.Writer, reports []fileReport) error {
	sorted := append([]fileReport(nil), reports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sorted)
}

// hasFailures reports whether any diagnostic should fail the run. Warnings
// and lints do not.
func hasFailures(reports []fileReport) bool {
	for _, r := range reports {
		for _, e := range r.Errors {
			if e.Category == analysis.CategorySyntax || e.Category == analysis.CategoryError {
				return true
			}
		}
	}
	return false
}
