package sanitize

import (
	"regexp"
	"strings"
)

var (
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	headingRe = regexp.MustCompile(`(?m)^#+ `)
	boldRe    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe  = regexp.MustCompile(`\*([^*\n]+?)\*`)
)

// StripComments removes every <!-- ... --> span, markers included. Spans may
// cross lines; an unterminated opener is left untouched.
func StripComments(text string) string {
	return commentRe.ReplaceAllString(text, "")
}

// StripHeadings removes "#", "##", ... markers followed by a space at the
// start of a line.
func StripHeadings(text string) string {
	return headingRe.ReplaceAllString(text, "")
}

// StripBold turns **text** into text. Spans never cross a line break.
func StripBold(text string) string {
	return boldRe.ReplaceAllString(text, "$1")
}

// StripItalic turns *text* into text, matching the shortest inner span.
func StripItalic(text string) string {
	return italicRe.ReplaceAllString(text, "$1")
}

// DropHorizontalRules deletes lines made only of three or more dashes.
func DropHorizontalRules(text string) string {
	return dropLines(text, func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return len(trimmed) >= 3 && strings.Trim(trimmed, "-") == ""
	})
}

// DropTableRows deletes lines that begin and end with a pipe.
func DropTableRows(text string) string {
	return dropLines(text, func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return trimmed != "" && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
	})
}

// BoldEmojiLines returns a rule wrapping the remainder of every line that
// starts with one of markers in <b></b>, unless it is already wrapped.
func BoldEmojiLines(markers []string) func(string) string {
	ordered := sortedMarkers(markers)
	return func(text string) string {
		if len(ordered) == 0 {
			return text
		}
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = boldEmojiLine(line, ordered)
		}
		return strings.Join(lines, "\n")
	}
}

func boldEmojiLine(line string, markers []string) string {
	for _, marker := range markers {
		if !strings.HasPrefix(line, marker) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, marker))
		if rest == "" || strings.HasPrefix(rest, "<b>") {
			return line
		}
		return marker + " <b>" + rest + "</b>"
	}
	return line
}

func dropLines(text string, drop func(string) bool) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if drop(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
