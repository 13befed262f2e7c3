package parse

import (
	"fmt"
	"strings"
)

// extractContext renders the lines around a location for error display.
// It works from the source bytes already in hand, so it applies equally
// to files and to in-memory rule documents.
func extractContext(source []byte, location Location, contextLines int) string {
	if location.Line <= 0 || len(source) == 0 {
		return ""
	}

	lines := strings.Split(string(source), "\n")

	errorLine := location.Line - 1 // 0-based index
	if errorLine >= len(lines) {
		return ""
	}

	startLine := errorLine - contextLines
	endLine := errorLine + contextLines
	if startLine < 0 {
		startLine = 0
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
	}

	var sb strings.Builder
	maxLineNumWidth := len(fmt.Sprintf("%d", endLine+1))

	for i := startLine; i <= endLine; i++ {
		lineNumStr := fmt.Sprintf("%*d", maxLineNumWidth, i+1)
		prefix := "  "
		if i == errorLine {
			prefix = "->"
		}

		sb.WriteString(fmt.Sprintf("%s %s | %s\n", prefix, lineNumStr, lines[i]))

		// Column marker under the offending line.
		if i == errorLine && location.Column > 0 {
			padding := strings.Repeat(" ", location.Column)
			sb.WriteString(fmt.Sprintf("  %s | %s^\n", strings.Repeat(" ", maxLineNumWidth), padding))
		}
	}

	return sb.String()
}

// addContext fills in the Context field of every error in the list from
// the given source bytes.
func addContext(el *ErrorList, source []byte) {
	for _, err := range el.Errors {
		if err.Context == "" && err.Location.Line > 0 {
			err.Context = extractContext(source, err.Location, 2)
		}
	}
}
