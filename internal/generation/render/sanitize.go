package render

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// Sanitize keeps only the runes the PDF core fonts can show (Windows-1252,
// excluding control characters) and trims surrounding whitespace. Other
// runes are dropped, not replaced.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// pdfText sanitizes s and encodes it as the single-byte string the core
// fonts expect.
func pdfText(s string) string {
	clean := Sanitize(s)
	out := make([]byte, 0, len(clean))
	for _, r := range clean {
		c, _ := charmap.Windows1252.EncodeRune(r)
		out = append(out, c)
	}
	return string(out)
}
