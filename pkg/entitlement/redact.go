package entitlement

import (
	"strings"
)

const notePreviewLength = 20

// RedactName keeps the first letter of each whitespace-delimited token: "Jane Smith" -> "J*** S***".
func RedactName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		r := []rune(f)
		out[i] = string(r[0]) + "***"
	}
	return strings.Join(out, " ")
}

// RedactNote shows a 20 character preview of long text and fully masks short text.
func RedactNote(note string) string {
	r := []rune(note)
	if len(r) > notePreviewLength {
		return string(r[:notePreviewLength]) + "..."
	}
	return strings.Repeat("*", len(r))
}
