package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
)

const maxTrackingIDLen = 100

// SyntheticID is substituted for a row whose identifier cannot be used.
func SyntheticID(row int) string {
	return fmt.Sprintf("ERROR-ROW-%d", row)
}

// TrackingID derives a filename- and URL-safe identifier from a cell. The
// result only contains ASCII letters, digits, '-' and '_'. A missing, blank,
// or unrepresentable cell yields SyntheticID(row) and synthetic=true.
func TrackingID(v generation.Value, row int) (id string, synthetic bool) {
	var raw string
	switch v.Kind() {
	case generation.KindMissing:
		return SyntheticID(row), true
	case generation.KindNumber:
		n, _ := v.Float()
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			raw = strconv.FormatInt(int64(n), 10)
		} else {
			raw = v.String()
		}
	default:
		raw = v.String()
	}
	id = slug(raw)
	if id == "" {
		return SyntheticID(row), true
	}
	return id, false
}

// slug folds diacritics, maps every other unsafe rune to '-', collapses
// runs, and trims separators from both ends.
func slug(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	lastDash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxTrackingIDLen {
		out = strings.TrimRight(out[:maxTrackingIDLen], "-")
	}
	return out
}
