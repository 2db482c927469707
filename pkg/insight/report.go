package insight

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// Report bundles the Markdown analysis document with an RFC4180-escaped CSV
// of the underlying rows, ready for the downloader.
type Report struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Markdown  string    `json:"markdown"`
	CSV       string    `json:"csv"`
	CreatedAt time.Time `json:"created_at"`
}

// priorityIcon maps recommendation priorities to their report icons.
func priorityIcon(priority string) string {
	switch strings.ToLower(priority) {
	case "high":
		return "🔴"
	case "medium":
		return "🟡"
	default:
		return "🟢"
	}
}

// BuildReport renders a diagnosis and the rows it was computed from into the
// fixed report layout.
func BuildReport(title string, diagnosis *models.Diagnosis, columns []string, rows [][]string) (*Report, error) {
	var md strings.Builder

	fmt.Fprintf(&md, "# %s\n\n", title)

	md.WriteString("## Diagnosis\n\n")
	md.WriteString(diagnosis.Diagnosis)
	md.WriteString("\n\n")

	if len(diagnosis.KeyPatterns) > 0 {
		md.WriteString("## Key Patterns\n\n")
		for _, pattern := range diagnosis.KeyPatterns {
			fmt.Fprintf(&md, "- %s\n", pattern)
		}
		md.WriteString("\n")
	}

	md.WriteString("## Recommendations\n\n")
	for _, rec := range diagnosis.Recommendations {
		fmt.Fprintf(&md, "- %s **%s**: %s\n", priorityIcon(rec.Priority), rec.Action, rec.Reason)
	}
	fmt.Fprintf(&md, "\nConfidence: %.0f%%\n", diagnosis.Confidence*100)

	csvText, err := buildCSV(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("build report csv: %w", err)
	}

	return &Report{
		ID:        uuid.NewString(),
		Title:     title,
		Markdown:  md.String(),
		CSV:       csvText,
		CreatedAt: time.Now(),
	}, nil
}

// buildCSV writes the rows as RFC4180 CSV (encoding/csv handles quoting and
// escaping).
func buildCSV(columns []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", err
	}
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	w.Flush()
	return buf.String(), w.Error()
}
