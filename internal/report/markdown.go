package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs the report in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *StatusReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Harvester Status")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", report.Site},
			{"Database", "`" + report.Database + "`"},
			{"Generated", report.GeneratedAt.Format(timeLayout)},
			{"Detail records", strconv.Itoa(report.Details)},
		},
	})
	md.PlainText("")

	w.writeQueue(md, report)
	w.writeFailures(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeQueue(md *markdown.Markdown, report *StatusReport) {
	md.H2("Work Queue")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Items"},
		Rows: [][]string{
			{"pending", strconv.Itoa(report.Pending)},
			{"success", strconv.Itoa(report.Success)},
			{"failed", strconv.Itoa(report.Failed)},
			{"**total**", strconv.Itoa(report.Total())},
		},
	})
	md.PlainText("")

	if report.Total() > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Items by status"),
			piechart.WithShowData(true),
		)
		if report.Pending > 0 {
			chart.LabelAndIntValue("pending", uint64(report.Pending))
		}
		if report.Success > 0 {
			chart.LabelAndIntValue("success", uint64(report.Success))
		}
		if report.Failed > 0 {
			chart.LabelAndIntValue("failed", uint64(report.Failed))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if report.LastProcessedURL != "" {
		md.Note("The next listing run stops at " + report.LastProcessedURL)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *StatusReport) {
	if report.Failed == 0 {
		md.Tip("No failed items.")
		md.PlainText("")
		return
	}

	md.H2("Failed Items")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Failures))
	for _, item := range report.Failures {
		rows = append(rows, []string{item.DetailURL, item.DetailTitle, item.UpdatedAt.Format(timeLayout)})
	}
	if len(rows) > 0 {
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Title", "Failed at"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	md.Warningf("%d items failed. Requeue them with `harvester requeue --all-failed`.", report.Failed)
	md.PlainText("")
}
