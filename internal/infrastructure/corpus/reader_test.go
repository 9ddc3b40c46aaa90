package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/chunking"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadCSVDropsEmptyRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,text\n")
	for i := 0; i < 1000; i++ {
		if i%10 == 0 {
			fmt.Fprintf(&b, "%d,\"   \"\n", i)
			continue
		}
		fmt.Fprintf(&b, "%d,\"Manual row %d, with a comma\"\n", i, i)
	}
	path := writeFile(t, "car_data.csv", b.String())

	texts, err := NewReader(path, "text", nil).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(texts) != 900 {
		t.Fatalf("expected 900 texts, got %d", len(texts))
	}
	if texts[0] != "Manual row 1, with a comma" {
		t.Fatalf("unexpected first text %q", texts[0])
	}
}

func TestReadCSVMatchesColumnCaseInsensitively(t *testing.T) {
	path := writeFile(t, "c.csv", "\ufeffText,page\nCheck tyres,1\n")

	texts, err := NewReader(path, "text", nil).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(texts) != 1 || texts[0] != "Check tyres" {
		t.Fatalf("unexpected texts %q", texts)
	}
}

func TestReadMissingFileIsDataError(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.csv"), "text", nil).Read(context.Background())
	if !domain.IsKind(err, domain.ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}
}

func TestReadMissingColumnIsDataError(t *testing.T) {
	path := writeFile(t, "c.csv", "body\nsomething\n")

	_, err := NewReader(path, "text", nil).Read(context.Background())
	if !domain.IsKind(err, domain.ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}
}

func TestReadTextLinesWithChunker(t *testing.T) {
	path := writeFile(t, "manual.txt", "a b c d e f\n\n  \nshort line\n")

	texts, err := NewReader(path, "", chunking.NewSplitter(4, 2)).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := []string{"a b c d", "c d e f", "short line"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("Read() = %q, want %q", texts, want)
	}
}

func TestReadXLSXFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"text", "section"}, {"Adjust the mirrors", "1"}, {"", "2"}, {"Fold the seats", "3"}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "car_data.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}

	texts, err := NewReader(path, "text", nil).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(texts) != 2 || texts[0] != "Adjust the mirrors" || texts[1] != "Fold the seats" {
		t.Fatalf("unexpected texts %q", texts)
	}
}

func TestReadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "c.json", "{}")
	_, err := NewReader(path, "text", nil).Read(context.Background())
	if !domain.IsKind(err, domain.ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}
	if SupportedExtension("x.json") || !SupportedExtension("X.CSV") {
		t.Fatalf("unexpected SupportedExtension result")
	}
}
