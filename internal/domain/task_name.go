package domain

import (
	"regexp"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TaskNameSeparator replaces every run of non-letters in a task name.
const TaskNameSeparator = "-"

var nonLetters = regexp.MustCompile(`[^a-zA-Z]+`)

// NormalizeTaskName maps an identifier to the token used as its task id.
// Accents are stripped ("Café" becomes "Cafe") and each maximal run of
// characters outside [a-zA-Z] collapses to TaskNameSeparator. An identifier
// without letters, the empty one included, becomes a lone separator.
func NormalizeTaskName(identifier string) string {
	// transform chains keep state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, identifier)
	if err != nil {
		stripped = identifier
	}

	name := nonLetters.ReplaceAllString(stripped, TaskNameSeparator)
	if name == "" {
		return TaskNameSeparator
	}
	return name
}
