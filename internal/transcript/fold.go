package transcript

import "strings"

// Fold returns s without Arabic diacritics, tatweel and Quranic annotation
// signs, with the hamza-carrying and wasla forms of alif written as a bare
// alif and alif maqṣūra written as yā'.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x064B && r <= 0x065F, r == 0x0670, r == 0x0640,
			r >= 0x06D6 && r <= 0x06ED:
			continue
		case r == 'أ', r == 'إ', r == 'آ', r == 'ٱ':
			b.WriteRune('ا')
		case r == 'ى':
			b.WriteRune('ي')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
