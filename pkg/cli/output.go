package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatText is human-readable output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is machine-readable JSON output.
	FormatJSON OutputFormat = "json"
)

// Valid reports whether the format is one a command accepts.
func (f OutputFormat) Valid() bool {
	return f == FormatText || f == FormatJSON
}

// Formatter renders command output.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// TextFormatter renders output with the value's default formatting.
// Commands that need structure use a Table instead.
type TextFormatter struct{}

// Format converts data to text.
func (f *TextFormatter) Format(data any) ([]byte, error) {
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

// FormatTo writes data to w as text.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter renders output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to w as JSON.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// NewFormatter returns the formatter for the format. Unknown formats
// fall back to text.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}

// Table renders aligned columnar output for listings.
type Table struct {
	w *tabwriter.Writer
}

// NewTable creates a table writing to w.
func NewTable(w io.Writer) *Table {
	return &Table{
		w: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0),
	}
}

// Header writes the column header row.
func (t *Table) Header(columns ...string) {
	t.writeRow(columns)
}

// Row writes one data row.
func (t *Table) Row(cells ...string) {
	t.writeRow(cells)
}

// Flush completes the table. Nothing is guaranteed to be written
// before Flush.
func (t *Table) Flush() error {
	return t.w.Flush()
}

func (t *Table) writeRow(cells []string) {
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}
