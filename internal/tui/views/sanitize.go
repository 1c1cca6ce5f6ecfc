package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// layoutBreakers are codepoints that fuse neighbouring runes into one glyph.
// tcell measures such clusters wrongly and the table cells drift.
var layoutBreakers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1}, // zero width joiner
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1f3fb, Hi: 0x1f3ff, Stride: 1}, // skin tone modifiers
		{Lo: 0xe0100, Hi: 0xe01ef, Stride: 1}, // variation selectors supplement
	},
}

// sanitizeForTerminal removes glyph joiners, terminal control characters
// other than newline and tab, and invalid UTF-8 from peer-supplied text.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == utf8.RuneError, unicode.IsControl(r), unicode.Is(layoutBreakers, r):
			return -1
		}
		return r
	}, s)
}
