package grading

import "unicode"

// normalize case-folds, trims and collapses runs of whitespace. Punctuation
// is kept: "-5" and "5" are different answers.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
