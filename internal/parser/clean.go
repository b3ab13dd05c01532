package parser

import (
	"regexp"
	"strings"
)

var (
	// control characters except \n and \t
	controlRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	// runs of spaces and tabs
	spacesRe = regexp.MustCompile(`[ \t]+`)
	// three or more consecutive newlines
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// cleanText normalizes extracted text: CRLF to LF, control chars stripped,
// horizontal whitespace runs collapsed, trailing per-line whitespace
// removed, and blank-line runs capped at one so paragraph boundaries
// ("\n\n") stay intact for the paragraph chunking strategy.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlRe.ReplaceAllString(text, "")
	text = spacesRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")

	text = blankRunsRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
