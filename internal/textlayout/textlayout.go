// Package textlayout turns raw recognized text into a block that a PDF text
// layer can hold: unsupported glyphs are removed and lines are wrapped greedily.
package textlayout

import (
	"strings"
	"unicode/utf8"
)

// WrapSafetyMargin is subtracted from the line budget so wrapped lines stay
// inside the page's text bounding box.
const WrapSafetyMargin = 15

// CharacterSet is the set of code points a rendering surface can draw.
type CharacterSet map[rune]struct{}

// NewCharacterSet builds a set from the given runes.
func NewCharacterSet(runes ...rune) CharacterSet {
	set := make(CharacterSet, len(runes))
	for _, r := range runes {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is in the set.
func (s CharacterSet) Contains(r rune) bool {
	_, ok := s[r]
	return ok
}

// Len returns the number of code points in the set.
func (s CharacterSet) Len() int { return len(s) }

// FilterToSupportedCharacters keeps only the runes of text found in supported,
// in their original order and with duplicates. Empty text or an empty set
// yields "".
func FilterToSupportedCharacters(text string, supported CharacterSet) string {
	if text == "" || supported.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if supported.Contains(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeWhitespace collapses every whitespace run, newlines included, into
// a single space.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// WrapToWidth wraps text with the fixed WrapSafetyMargin.
func WrapToWidth(text string, maxLineLength int) string {
	return WrapToWidthWithMargin(text, maxLineLength, WrapSafetyMargin)
}

// WrapToWidthWithMargin greedily packs whitespace-separated words into lines.
// A line is flushed once its accumulated length, counted in runes with the
// separator after each word, reaches maxLineLength-margin, and at the last
// word. A negative maxLineLength yields "".
func WrapToWidthWithMargin(text string, maxLineLength, margin int) string {
	if maxLineLength < 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	threshold := maxLineLength - margin

	lines := make([]string, 0, len(words))
	var line strings.Builder
	lineLength := 0
	for i, word := range words {
		line.WriteString(word)
		line.WriteByte(' ')
		lineLength += utf8.RuneCountInString(word) + 1

		if lineLength >= threshold || i == len(words)-1 {
			lines = append(lines, strings.TrimRight(line.String(), " "))
			line.Reset()
			lineLength = 0
		}
	}
	return strings.Join(lines, "\n")
}
