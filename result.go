package keel

import (
	"github.com/jward/keel/internal/analysis"
	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
)

// AnalysisResult is one self-consistent analysis of one file: the hash
// matches the content, the unit was parsed from that content, and the errors
// were computed against the same snapshot.
type AnalysisResult struct {
	Path        string
	URI         source.URI
	Content     string
	ContentHash string
	Unit        *frontend.Unit
	Errors      []analysis.Error
}

// Result is the outcome of a GetResult future: exactly one of Value and Err
// is set. Err is ErrShutdown when the driver stopped before analyzing the
// file, or the analysis failure otherwise.
type Result struct {
	Value *AnalysisResult
	Err   error
}
