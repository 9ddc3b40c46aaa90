// Package corpus reads the flat manual corpus into chunk texts.
package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

// Reader selects a format by file extension. Every non-empty row (or PDF
// page, or text line) becomes one text; long texts go through the chunker.
type Reader struct {
	path       string
	textColumn string
	chunker    ports.Chunker
}

func NewReader(path, textColumn string, chunker ports.Chunker) *Reader {
	if strings.TrimSpace(textColumn) == "" {
		textColumn = "text"
	}
	return &Reader{path: path, textColumn: textColumn, chunker: chunker}
}

func (r *Reader) Source() string {
	return r.path
}

func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".pdf", ".txt":
		return true
	default:
		return false
	}
}

func (r *Reader) Read(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(r.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrData, "read corpus", fmt.Errorf("corpus file %s not found", r.path))
		}
		return nil, domain.WrapError(domain.ErrData, "read corpus", err)
	}

	var (
		rows []string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(r.path)); ext {
	case ".csv":
		rows, err = r.readCSV()
	case ".xlsx":
		rows, err = r.readXLSX()
	case ".pdf":
		rows, err = readPDF(ctx, r.path)
	case ".txt":
		rows, err = readLines(r.path)
	default:
		err = fmt.Errorf("unsupported corpus format %q", ext)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrData, "read corpus", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		if r.chunker == nil {
			out = append(out, row)
			continue
		}
		out = append(out, r.chunker.Split(row)...)
	}
	return out, nil
}

func (r *Reader) readCSV() ([]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv corpus is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col, err := r.columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if col < len(record) {
			rows = append(rows, record[col])
		}
	}
	return rows, nil
}

func (r *Reader) readXLSX() ([]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx corpus has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("xlsx corpus is empty")
	}

	col, err := r.columnIndex(records[0])
	if err != nil {
		return nil, err
	}
	rows := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if col < len(record) {
			rows = append(rows, record[col])
		}
	}
	return rows, nil
}

func (r *Reader) columnIndex(header []string) (int, error) {
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(name), r.textColumn) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found in corpus header", r.textColumn)
}

func readPDF(ctx context.Context, path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text corpus: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}
