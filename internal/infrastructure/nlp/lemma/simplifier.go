package lemma

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Lemmatizer reduces a single word to its base form.
type Lemmatizer interface {
	Lemma(word string) string
}

// Simplifier drops stop words and lemmatizes the remaining tokens,
// keeping their original order.
type Simplifier struct {
	lemmatizer Lemmatizer
	stopWords  map[string]struct{}
}

// NewEnglish loads the embedded English golem dictionary.
func NewEnglish() (*Simplifier, error) {
	lemmatizer, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemma dictionary: %w", err)
	}
	return New(lemmatizer, nil), nil
}

// New builds a simplifier. A nil stop list selects the default English one.
func New(lemmatizer Lemmatizer, stopWords []string) *Simplifier {
	if stopWords == nil {
		stopWords = englishStopWords
	}
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Simplifier{lemmatizer: lemmatizer, stopWords: set}
}

func (s *Simplifier) Simplify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.ToLower(strings.TrimFunc(field, isPunct))
		if token == "" {
			continue
		}
		if _, stop := s.stopWords[token]; stop {
			continue
		}
		lemma := strings.TrimSpace(s.lemmatizer.Lemma(token))
		if lemma == "" {
			lemma = token
		}
		out = append(out, strings.ToLower(lemma))
	}
	return strings.Join(out, " "), nil
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
