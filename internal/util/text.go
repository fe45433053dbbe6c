package util

import "strings"

// SanitizePostgresText strips invalid UTF-8 sequences and NUL bytes,
// which Postgres text columns reject. Extracted document text and model
// summaries pass through here before insertion.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	return strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
}
