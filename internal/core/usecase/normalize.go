package usecase

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Normalize strips markup and every character outside [A-Za-z0-9?.!] and
// whitespace, collapses whitespace runs to one space and trims the result.
func Normalize(raw string) string {
	text := stripMarkup(raw)

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case isAllowedRune(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAllowedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '?', r == '.', r == '!':
		return true
	default:
		return false
	}
}

// stripMarkup keeps text nodes and replaces every complete tag with a space.
// A '<' that never closes is kept as text and left to the whitelist.
func stripMarkup(raw string) string {
	if !strings.ContainsRune(raw, '<') && !strings.ContainsRune(raw, '&') {
		return raw
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				b.Write(tokenizer.Raw())
			}
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
