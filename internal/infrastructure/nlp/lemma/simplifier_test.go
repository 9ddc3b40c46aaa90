package lemma

import (
	"context"
	"strings"
	"testing"
)

type lemmaFake map[string]string

func (f lemmaFake) Lemma(word string) string {
	if lemma, ok := f[word]; ok {
		return lemma
	}
	return word
}

func TestSimplifyDropsStopWordsAndKeepsOrder(t *testing.T) {
	s := New(lemmaFake{"doors": "door", "locking": "lock"}, nil)

	got, err := s.Simplify(context.Background(), "How do I stop the Doors locking automatically?")
	if err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	if got != "stop door lock automatically" {
		t.Fatalf("unexpected simplification %q", got)
	}
}

func TestSimplifyDropsPunctuationOnlyTokens(t *testing.T) {
	s := New(lemmaFake{}, []string{})

	got, err := s.Simplify(context.Background(), "wipers ? . !")
	if err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	if got != "wipers" {
		t.Fatalf("unexpected simplification %q", got)
	}
}

func TestSimplifyAllStopWordsYieldsEmpty(t *testing.T) {
	s := New(lemmaFake{}, nil)

	got, err := s.Simplify(context.Background(), "what is it")
	if err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestSimplifyHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(lemmaFake{}, nil).Simplify(ctx, "tyres"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestEnglishDictionaryLemmatizesPlurals(t *testing.T) {
	s, err := NewEnglish()
	if err != nil {
		t.Fatalf("NewEnglish() error = %v", err)
	}

	got, err := s.Simplify(context.Background(), "open the doors")
	if err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	if !strings.Contains(got, "door") || strings.Contains(got, "doors") || strings.Contains(got, "the") {
		t.Fatalf("unexpected simplification %q", got)
	}
}
