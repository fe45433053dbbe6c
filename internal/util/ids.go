package util

import (
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NormalizeEntityID derives the canonical snake_case id for an entity name.
// Letters are lowercased, every run of non-alphanumeric characters collapses
// to a single underscore, and leading/trailing underscores are trimmed, so
// "Machine Learning", "machine-learning" and " machine  learning " all map
// to "machine_learning".
func NormalizeEntityID(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

// NewRunID returns a short unique id for correlating a single ingest run
// across queue messages, log lines, and stored analyses.
func NewRunID() (string, error) {
	return gonanoid.New()
}
