// Package numerals renders integers with Arabic-Indic digit glyphs.
package numerals

import (
	"strconv"
	"strings"
)

var arabicIndic = [10]rune{'٠', '١', '٢', '٣', '٤', '٥', '٦', '٧', '٨', '٩'}

// ToArabicIndic maps every decimal digit of n to U+0660..U+0669. It does not
// consult any locale.
func ToArabicIndic(n int) string {
	digits := strconv.Itoa(n)

	var b strings.Builder
	b.Grow(len(digits) * 2)
	for _, r := range digits {
		if r >= '0' && r <= '9' {
			b.WriteRune(arabicIndic[r-'0'])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FromArabicIndic is the inverse of ToArabicIndic. ASCII digits are accepted too.
func FromArabicIndic(s string) (int, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= arabicIndic[0] && r <= arabicIndic[9] {
			b.WriteRune('0' + (r - arabicIndic[0]))
			continue
		}
		b.WriteRune(r)
	}
	return strconv.Atoi(b.String())
}
