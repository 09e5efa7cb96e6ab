package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is a header-keyed set of rows shared by the CSV and PDF renderers.
type Table struct {
	Headers []string
	Rows    []map[string]string
	// Notes are free-form summary lines printed above the table (PDF only).
	Notes []string
}

// CSVExporter renders tables into CSV bytes.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds a comma separated exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{comma: ','}
}

// Render produces CSV encoded bytes for the table.
func (e *CSVExporter) Render(data Table) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if e.comma != 0 {
		writer.Comma = e.comma
	}
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
