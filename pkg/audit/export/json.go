package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/ganymede/pkg/audit"
)

// JSONExporter exports decision records to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes decision records to the provided writer as a JSON array.
// If Pretty is true, the JSON will be indented for readability.
func (e *JSONExporter) Export(ctx context.Context, decisions []*audit.Decision, w io.Writer) error {
	if len(decisions) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var data []byte
	var err error

	if e.Pretty {
		data, err = json.MarshalIndent(decisions, "", "  ")
	} else {
		data, err = json.Marshal(decisions)
	}

	if err != nil {
		return audit.NewExportError("json", len(decisions), err)
	}

	_, err = w.Write(data)
	if err != nil {
		return audit.NewExportError("json", len(decisions), err)
	}

	return nil
}

// ExportStream exports decision records from a channel to JSON format.
// This is memory-efficient for large result sets as it streams records
// one at a time instead of loading all records in memory.
//
// The records are exported as a JSON array. The stream processes records
// as they arrive on the channel, making it suitable for very large exports.
func (e *JSONExporter) ExportStream(ctx context.Context, decisionCh <-chan *audit.Decision, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return audit.NewExportError("json", 0, err)
	}

	first := true
	recordCount := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-decisionCh:
			if !ok {
				// Channel closed, close the array and return
				if _, err := w.Write([]byte("]")); err != nil {
					return audit.NewExportError("json", recordCount, err)
				}
				return nil
			}

			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return audit.NewExportError("json", recordCount, err)
				}
				if e.Pretty {
					if _, err := w.Write([]byte("\n")); err != nil {
						return audit.NewExportError("json", recordCount, err)
					}
				}
			}
			first = false

			data, err := e.serializeDecision(d)
			if err != nil {
				return audit.NewExportError("json", recordCount, err)
			}

			if _, err := w.Write(data); err != nil {
				return audit.NewExportError("json", recordCount, err)
			}

			recordCount++
		}
	}
}

// serializeDecision serializes a single decision record to JSON.
func (e *JSONExporter) serializeDecision(d *audit.Decision) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(d, "  ", "  ")
	}
	return json.Marshal(d)
}
