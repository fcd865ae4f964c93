package fuzzy

import "strings"

// confusables maps punctuation that OCR engines commonly emit in place of
// letters. Applied to output lines before the character-set strip, never
// to wordlist words.
var confusables = map[rune]rune{
	'|': 'l',
	'!': 'i',
	'$': 's',
	'@': 'a',
	'€': 'e',
}

// NormalizeWord lower-cases and strips all characters outside [a-z0-9 ],
// optionally dropping digits as well.
func NormalizeWord(s string, stripNumbers bool) string {
	return normalize(s, stripNumbers)
}

// NormalizeLine normalizes one OCR output line the same way as a word,
// additionally substituting common OCR confusables first.
func NormalizeLine(s string, stripNumbers bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := confusables[r]; ok {
			r = sub
		}
		b.WriteRune(r)
	}
	return normalize(b.String(), stripNumbers)
}

func normalize(s string, stripNumbers bool) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == ' ':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if !stripNumbers {
				b.WriteRune(r)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
