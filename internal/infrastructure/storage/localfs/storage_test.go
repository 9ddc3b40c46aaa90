package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

func TestSaveThenOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "car_data.csv", strings.NewReader("text\nhello\n")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(context.Background(), "car_data.csv")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "text\nhello\n" {
		t.Fatalf("unexpected content %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSaveRejectsEscapingKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../x.csv", "", filepath.Join("..", "..", "etc")} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestSaveCancelledKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	if err := s.Save(context.Background(), "c.csv", strings.NewReader("old")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, "c.csv", strings.NewReader("new")); err == nil {
		t.Fatalf("expected cancellation error")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "c.csv"))
	if string(data) != "old" {
		t.Fatalf("previous corpus overwritten: %q", data)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	s, _ := New(t.TempDir())
	if _, err := s.Open(context.Background(), "missing.csv"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
