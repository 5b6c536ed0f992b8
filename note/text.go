package note

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// isInvisible reports control runes that survive copy-paste from rich
// editors: zero-width characters, directional marks and bidi controls.
func isInvisible(r rune) bool {
	switch r {
	case 0x200b, 0x200c, 0x200d, 0x200e, 0x200f, // zero-width, directional marks
		0x2060, 0xfeff, // word joiner, BOM
		0x202a, 0x202b, 0x202c, 0x202d, 0x202e: // bidi embeddings and overrides
		return true
	}
	return 0x2066 <= r && r <= 0x2069 // bidi isolates
}

func stripInvisible(s string) string {
	if !strings.ContainsFunc(s, isInvisible) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isInvisible(r) {
			return -1
		}
		return r
	}, s)
}

// collapseSpace folds every whitespace run into a single space. The ends are
// not trimmed - a leading or trailing space keeps adjacent runs separated.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// normalizeText prepares text coming from parsed nodes: entities were already
// decoded by the parser, so only invisible runes and whitespace need work.
func normalizeText(s string) string {
	return collapseSpace(stripInvisible(s))
}

// CleanText normalizes a raw string from outside the parser: decodes HTML
// entities, drops invisible runes, collapses whitespace and trims the ends.
func CleanText(s string) string {
	return strings.TrimSpace(normalizeText(html.UnescapeString(s)))
}
