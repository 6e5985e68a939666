package textutil

import "strings"

// Token converts value to a lowercase filesystem-safe token. ASCII letters,
// digits, '-' and '_' are kept; every other rune becomes '_'. Empty results
// fall back to fallback.
func Token(value, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return fallback
	}
	return out
}

// Truncate collapses runs of whitespace in s and cuts it to width runes,
// appending "..." when anything was dropped.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	return string(r[:width]) + "..."
}
