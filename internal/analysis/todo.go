package analysis

import (
	"strings"

	"github.com/jward/keel/internal/frontend"
)

// findTodos reports every TODO marker found in a comment. String literals
// are skipped so quoted text cannot produce markers.
func findTodos(content string, lines *frontend.LineInfo) []Error {
	var errs []Error
	mark := func(comment string, base int) {
		for i := 0; i < len(comment); {
			j := strings.Index(comment[i:], "TODO")
			if j < 0 {
				return
			}
			offset := base + i + j
			line, col := lines.Position(offset)
			errs = append(errs, Error{
				Code:     "todo",
				Category: CategoryTodo,
				Message:  "TODO comment",
				Offset:   offset,
				Length:   4,
				Line:     line,
				Col:      col,
			})
			i += j + 4
		}
	}

	for i := 0; i < len(content); {
		switch {
		case content[i] == '"':
			i++
			for i < len(content) && content[i] != '"' && content[i] != '\n' {
				i++
			}
			if i < len(content) {
				i++
			}
		case strings.HasPrefix(content[i:], "//"):
			end := strings.IndexByte(content[i:], '\n')
			if end < 0 {
				end = len(content) - i
			}
			mark(content[i:i+end], i)
			i += end
		case strings.HasPrefix(content[i:], "/*"):
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				mark(content[i:], i)
				return errs
			}
			mark(content[i:i+2+end+2], i)
			i += 2 + end + 2
		default:
			i++
		}
	}
	return errs
}
