// Package textnorm cleans up the spacing, punctuation and quotes of an
// assembled OCR line of Vietnamese or English text.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

const ws = `[\s\v\x{85}\p{Z}]`

var (
	spaceBeforePunct   = regexp.MustCompile(ws + `+([,.;:!?])`)
	spaceAfterOpening  = regexp.MustCompile(`([(\[{])` + ws + `+`)
	spaceBeforeClosing = regexp.MustCompile(ws + `+([)\]}])`)
	periodRun          = regexp.MustCompile(`\.{2,}`)
	colonQuestion      = regexp.MustCompile(`:` + ws + `*\?+`)
	markBeforeColon    = regexp.MustCompile(`([?!])` + ws + `+:`)
	spaceRun           = regexp.MustCompile(ws + `{2,}`)
)

// Normalize applies the line cleanup rules in order. The order matters:
// for example ellipsis folding has to run before punctuation spacing, or
// "..." would come out as ". . .".
//
// Normalize is idempotent.
func Normalize(s string) string {
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = spaceAfterOpening.ReplaceAllString(s, "$1")
	s = spaceBeforeClosing.ReplaceAllString(s, "$1")
	s = periodRun.ReplaceAllString(s, "…")
	s = colonQuestion.ReplaceAllString(s, ": ")
	s = markBeforeColon.ReplaceAllString(s, "$1:")
	s = spaceAfterComma(s)
	s = spaceAfterMarks(s)
	s = CurlyQuotes(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// spaceAfterComma puts a space after every comma not already followed by
// whitespace, including a trailing one.
func spaceAfterComma(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range runes {
		b.WriteRune(r)
		if r == ',' && (i+1 == len(runes) || !unicode.IsSpace(runes[i+1])) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// spaceAfterMarks puts a space after . : ; ! ? unless the mark ends the
// string or is already followed by whitespace.
func spaceAfterMarks(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range runes {
		b.WriteRune(r)
		if !strings.ContainsRune(".:;!?", r) || i+1 == len(runes) {
			continue
		}
		if !unicode.IsSpace(runes[i+1]) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// CurlyQuotes folds doubled straight quotes ('' and "") into a single " and
// then turns the straight double quotes into alternating “ and ”, starting
// with an opening quote.
func CurlyQuotes(s string) string {
	s = strings.ReplaceAll(s, "''", `"`)
	s = strings.ReplaceAll(s, `""`, `"`)

	var b strings.Builder
	b.Grow(len(s) + 8)
	open := true
	for _, r := range s {
		if r != '"' {
			b.WriteRune(r)
			continue
		}
		if open {
			b.WriteRune('“')
		} else {
			b.WriteRune('”')
		}
		open = !open
	}
	return b.String()
}
