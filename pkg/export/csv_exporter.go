package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is one titled section of a statement.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Footer is an optional totals row rendered after the body.
	Footer []string
}

// Document groups the tables of a statement under a common title.
type Document struct {
	Title    string
	Subtitle string
	Tables   []Table
}

func (t Table) validate() error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("table %q requires at least one header", t.Title)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("table %q row %d has %d cells, want %d", t.Title, i, len(row), len(t.Headers))
		}
	}
	if len(t.Footer) > 0 && len(t.Footer) != len(t.Headers) {
		return fmt.Errorf("table %q footer has %d cells, want %d", t.Title, len(t.Footer), len(t.Headers))
	}
	return nil
}

// CSVExporter renders documents into CSV bytes, one block per table separated by a blank record.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the document.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("csv requires at least one table")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for i, table := range doc.Tables {
		if err := table.validate(); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if table.Title != "" {
			if err := writer.Write([]string{table.Title}); err != nil {
				return nil, fmt.Errorf("write csv title: %w", err)
			}
		}
		if err := writer.Write(table.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		if err := writer.WriteAll(table.Rows); err != nil {
			return nil, fmt.Errorf("write csv rows: %w", err)
		}
		if len(table.Footer) > 0 {
			if err := writer.Write(table.Footer); err != nil {
				return nil, fmt.Errorf("write csv footer: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
