package compositor

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Lllllllleong/searchablepdf/internal/textlayout"
)

// The standard Times font is drawn through the Windows-1252 code page, so its
// glyph set is the printable part of that code page.
var timesGlyphs = sync.OnceValue(func() textlayout.CharacterSet {
	runes := make([]rune, 0, 224)
	for b := 0x20; b <= 0xFF; b++ {
		r := charmap.Windows1252.DecodeByte(byte(b))
		if r == utf8.RuneError || unicode.IsControl(r) {
			continue
		}
		runes = append(runes, r)
	}
	return textlayout.NewCharacterSet(runes...)
})

// TimesGlyphs returns the code points the embedded Times-Roman font can draw.
// The set is shared and must not be modified.
func TimesGlyphs() textlayout.CharacterSet {
	return timesGlyphs()
}
