package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs a human-readable text report.
type SimpleWriter struct {
	baseWriter
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer) *SimpleWriter {
	return &SimpleWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *StatusReport) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("HARVESTER STATUS  %s\n", report.Site))
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Database:       %s\n", report.Database))
	sb.WriteString(fmt.Sprintf("Generated:      %s\n\n", report.GeneratedAt.Format(timeLayout)))

	sb.WriteString(fmt.Sprintf("Pending:        %d\n", report.Pending))
	sb.WriteString(fmt.Sprintf("Success:        %d\n", report.Success))
	sb.WriteString(fmt.Sprintf("Failed:         %d\n", report.Failed))
	sb.WriteString(fmt.Sprintf("Total:          %d\n", report.Total()))
	sb.WriteString(fmt.Sprintf("Detail records: %d\n", report.Details))

	if report.LastProcessedURL != "" {
		sb.WriteString(fmt.Sprintf("Resume point:   %s\n", report.LastProcessedURL))
	}

	if len(report.Failures) > 0 {
		sb.WriteString("\nFailed items (requeue with `harvester requeue --all-failed`):\n")
		for _, item := range report.Failures {
			sb.WriteString(fmt.Sprintf("  - %s  %s\n", item.DetailURL, item.DetailTitle))
		}
	}

	return w.output.Write([]byte(sb.String()))
}
