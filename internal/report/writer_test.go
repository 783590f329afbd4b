package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/harvester/internal/database"
	"github.com/nao1215/harvester/internal/model"
)

// createTestReport creates a report with a mix of statuses.
func createTestReport() *StatusReport {
	return &StatusReport{
		Site:             "example",
		Database:         "/tmp/harvester.db",
		GeneratedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Pending:          3,
		Success:          5,
		Failed:           2,
		Details:          5,
		LastProcessedURL: "https://example.com/i/10.html",
		Failures: []*model.WorkItem{
			{DetailURL: "https://example.com/i/7.html", DetailTitle: "seven", Status: model.StatusFailed},
			{DetailURL: "https://example.com/i/8.html", DetailTitle: "eight", Status: model.StatusFailed},
		},
	}
}

// TestSimpleWriter tests the human-readable writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes counts and failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("returned %d bytes, buffer has %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"HARVESTER STATUS  example",
			"Pending:        3",
			"Success:        5",
			"Failed:         2",
			"Total:          10",
			"Resume point:   https://example.com/i/10.html",
			"https://example.com/i/7.html  seven",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q\n%s", want, output)
			}
		}
	})

	t.Run("empty queue omits optional sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(&StatusReport{Site: "example"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		output := buf.String()
		if strings.Contains(output, "Resume point") {
			t.Error("resume point should be omitted")
		}
		if strings.Contains(output, "Failed items") {
			t.Error("failure list should be omitted")
		}
	})
}

// TestJSONWriter tests JSON output.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("compact output should be a single line: %q", buf.String())
		}

		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["total"] != float64(10) {
			t.Errorf("total = %v, want 10", got["total"])
		}
		if got["site"] != "example" {
			t.Errorf("site = %v, want example", got["site"])
		}
		failures, ok := got["failures"].([]any)
		if !ok || len(failures) != 2 {
			t.Errorf("failures = %v, want 2 entries", got["failures"])
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"site\": \"example\"") {
			t.Errorf("expected indented output, got:\n%s", buf.String())
		}
	})
}

// TestMarkdownWriter tests Markdown output.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("with failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Harvester Status",
			"## Work Queue",
			"```mermaid",
			"pie",
			"## Failed Items",
			"https://example.com/i/8.html",
			"2 items failed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q\n%s", want, output)
			}
		}
	})

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(&StatusReport{Site: "example"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		output := buf.String()
		if strings.Contains(output, "```mermaid") {
			t.Error("chart should be omitted for an empty queue")
		}
		if !strings.Contains(output, "No failed items.") {
			t.Errorf("expected tip for no failures:\n%s", output)
		}
	})
}

// failingSource fails on the named method.
type failingSource struct {
	Source
	failOn string
}

var errSource = errors.New("source down")

func (s failingSource) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	if s.failOn == "counts" {
		return nil, errSource
	}
	return s.Source.CountByStatus(ctx)
}

func (s failingSource) CountDetails(ctx context.Context) (int, error) {
	if s.failOn == "details" {
		return 0, errSource
	}
	return s.Source.CountDetails(ctx)
}

// TestCollect tests building a report from the database.
func TestCollect(t *testing.T) {
	t.Parallel()

	openDB := func(t *testing.T) *database.CrawlDB {
		t.Helper()
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		ctx := context.Background()
		for i := 1; i <= 4; i++ {
			err := db.Enqueue(ctx, &model.WorkItem{
				SiteName:    "example",
				SiteURL:     "https://example.com/list",
				DetailURL:   fmt.Sprintf("https://example.com/i/%d.html", i),
				DetailTitle: fmt.Sprintf("title %d", i),
			})
			if err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
		}
		if err := db.SetStatus(ctx, "https://example.com/i/1.html", model.StatusSuccess); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		if err := db.SetStatus(ctx, "https://example.com/i/2.html", model.StatusFailed); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		return db
	}

	t.Run("counts and failures", func(t *testing.T) {
		t.Parallel()

		db := openDB(t)
		got, err := Collect(context.Background(), db, "example", db.Path(), 10)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if got.Pending != 2 || got.Success != 1 || got.Failed != 1 {
			t.Errorf("counts = %d/%d/%d, want 2/1/1", got.Pending, got.Success, got.Failed)
		}
		if got.Total() != 4 {
			t.Errorf("Total() = %d, want 4", got.Total())
		}
		if len(got.Failures) != 1 || got.Failures[0].DetailURL != "https://example.com/i/2.html" {
			t.Errorf("Failures = %+v", got.Failures)
		}
		if got.Database != db.Path() {
			t.Errorf("Database = %q, want %q", got.Database, db.Path())
		}
	})

	t.Run("zero failure limit lists none", func(t *testing.T) {
		t.Parallel()

		db := openDB(t)
		got, err := Collect(context.Background(), db, "example", db.Path(), 0)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if got.Failed != 1 {
			t.Errorf("Failed = %d, want 1", got.Failed)
		}
		if len(got.Failures) != 0 {
			t.Errorf("Failures = %+v, want none", got.Failures)
		}
	})

	for _, failOn := range []string{"counts", "details"} {
		t.Run("source error "+failOn, func(t *testing.T) {
			t.Parallel()

			db := openDB(t)
			_, err := Collect(context.Background(), failingSource{Source: db, failOn: failOn}, "example", db.Path(), 10)
			if !errors.Is(err, errSource) {
				t.Errorf("error = %v, want %v", err, errSource)
			}
		})
	}
}
