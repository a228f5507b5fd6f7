package relay

import (
	"strings"
	"unicode/utf8"
)

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'“':  '”',
	'«':  '»',
	'„':  '“',
}

// ExtractTitle берёт текст до разделителя и снимает один слой кавычек.
// Если разделителя нет, текст возвращается без изменений.
func ExtractTitle(text, separator string) string {
	if separator == "" {
		return text
	}
	head, _, found := strings.Cut(text, separator)
	if !found {
		return text
	}
	return stripQuotes(strings.TrimSpace(head))
}

func stripQuotes(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	closing, ok := quotePairs[first]
	if !ok {
		return s
	}
	last, lastSize := utf8.DecodeLastRuneInString(s)
	if last != closing || len(s) < size+lastSize {
		return s
	}
	return strings.TrimSpace(s[size : len(s)-lastSize])
}
