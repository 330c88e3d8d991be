package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Column headers of the exported CSV files.
var (
	ExpoQuestionsHeader = []string{"id", "answer", "sent", "text"}
	ExpoBuzzHeader      = []string{"question", "sentence", "word", "page", "evidence", "final", "weight"}
	ExpoFinalHeader     = []string{"question", "answer"}
)

// CSVWriter writes typed rows under a fixed header. Floats are formatted
// with FormatFloat.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes header to w and returns the row writer.
func NewCSVWriter(w io.Writer, header []string) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(header); err != nil {
		return nil, err
	}
	return cw, nil
}

// Write appends one row. Supported field types are string, int and float64.
func (c *CSVWriter) Write(fields ...interface{}) error {
	record := make([]string, len(fields))
	for i, f := range fields {
		switch v := f.(type) {
		case string:
			record[i] = v
		case int:
			record[i] = strconv.Itoa(v)
		case float64:
			record[i] = FormatFloat(v)
		default:
			return fmt.Errorf("unsupported CSV field type %T", f)
		}
	}
	return c.w.Write(record)
}

// Flush flushes buffered rows and reports any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
