// Package compose holds the model-backed authors of a book: the structure
// planner, the chapter writer, the cover artist and the illustration advisor.
// Each takes read-only inputs and returns plain values.
package compose

import "unicode/utf8"

// Clip returns the first limit runes of s and whether anything was cut.
func Clip(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}
