package shared

import (
	"strings"
	"unicode/utf8"
)

// DecodeLossy converts b to text, replacing each invalid UTF-8 sequence with
// U+FFFD. The returned DecodeError is nil when b was valid; it is a report,
// not a failure.
func DecodeLossy(b []byte) (string, *DecodeError) {
	if utf8.Valid(b) {
		return string(b), nil
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	report := &DecodeError{Offset: -1}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			if report.Offset < 0 {
				report.Offset = i
			}
			report.Replacements++
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.Write(b[i : i+size])
		i += size
	}
	return sb.String(), report
}
