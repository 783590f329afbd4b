package report

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSONWriter outputs the report as JSON.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables pretty-printed JSON with two space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// jsonReport adds derived fields to the serialized report.
type jsonReport struct {
	*StatusReport
	Total int `json:"total"`
}

// Write encodes the report as one JSON document followed by a newline.
func (w *JSONWriter) Write(report *StatusReport) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if w.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(jsonReport{StatusReport: report, Total: report.Total()}); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
