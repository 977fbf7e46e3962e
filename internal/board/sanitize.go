package board

import (
	"strings"
	"unicode"
)

// zeroWidth lists format characters that survive unicode.IsControl but
// render as nothing, letting a comment look empty or spoof its content.
var zeroWidth = map[rune]struct{}{
	'\u200b': {}, // zero width space
	'\u200c': {}, // zero width non-joiner
	'\u200d': {}, // zero width joiner
	'\u2060': {}, // word joiner
	'\ufeff': {}, // byte order mark
	'\u00ad': {}, // soft hyphen
}

// sanitize cleans raw comment text: line endings are normalized, control and
// zero-width characters are stripped, horizontal whitespace runs collapse to
// one space, blank-line runs collapse to one blank line, any character
// repeated beyond maxRun collapses to exactly maxRun, and the result is
// truncated to maxLen runes.
func sanitize(raw string, maxLen, maxRun int) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cleaned strings.Builder
	cleaned.Grow(len(text))
	for _, r := range text {
		if r == '\n' {
			cleaned.WriteRune(r)
			continue
		}
		if r == '\t' {
			cleaned.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if _, ok := zeroWidth[r]; ok {
			continue
		}
		cleaned.WriteRune(r)
	}

	runes := []rune(cleaned.String())
	out := make([]rune, 0, len(runes))
	run := 0
	for _, r := range runes {
		if len(out) > 0 && out[len(out)-1] == r {
			run++
		} else {
			run = 1
		}
		limit := maxRun
		switch r {
		case ' ':
			limit = 1
		case '\n':
			limit = 2
		}
		if run > limit {
			continue
		}
		out = append(out, r)
	}

	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	// Trimming lines can open up fresh blank-line runs
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	if resultRunes := []rune(result); len(resultRunes) > maxLen {
		result = strings.TrimSpace(string(resultRunes[:maxLen]))
	}
	return result
}
