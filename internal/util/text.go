package util

import (
	"bytes"
	"fmt"
)

// LineCol converts a byte offset in src to a 1-based line and column,
// used to report positions from canonical-program decode errors.
func LineCol(src string, pos int) (line int, column int) {
	line = 1
	column = 1
	for i, char := range src {
		if i == pos {
			break
		}
		if char == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return
}

// ContextSnippet formats the offending line with up to two lines of
// leading context and a column marker.
func ContextSnippet(src string, errorLine, errorCol int) string {
	var result bytes.Buffer

	lines := []string{}
	lineStart := 0
	for i, ch := range src {
		if ch == '\n' {
			lines = append(lines, src[lineStart:i])
			lineStart = i + 1
		}
	}
	if lineStart < len(src) {
		lines = append(lines, src[lineStart:])
	}

	startLine := errorLine - 2
	if startLine < 1 {
		startLine = 1
	}

	for i := startLine; i <= errorLine && i <= len(lines); i++ {
		content := lines[i-1]
		if i == errorLine {
			margin := fmt.Sprintf("  >  %3d | ", i)
			result.WriteString(fmt.Sprintf("%s%s\n", margin, content))
			prefix := margin + content
			if errorCol-1 < len(content) {
				prefix = margin + content[:errorCol-1]
			}
			result.WriteString(fmt.Sprintf("%s^ unexpected here", blankVisible(prefix)))
		} else {
			result.WriteString(fmt.Sprintf("     %3d | %s\n", i, content))
		}
	}

	return result.String()
}

// blankVisible replaces non-whitespace with spaces, preserving tabs so
// the marker lines up.
func blankVisible(s string) string {
	var buf bytes.Buffer
	for _, c := range s {
		if c == '\t' {
			buf.WriteRune('\t')
		} else {
			buf.WriteRune(' ')
		}
	}
	return buf.String()
}
