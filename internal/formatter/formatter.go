// package formatter renders job reports in various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Format names a report format accepted by [Render].
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts a format name and the md alias for Markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatMarkdown, FormatCSV:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Render converts a job to the given format.
func Render(job *models.Job, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return JobToText(job)
	case FormatMarkdown:
		return JobToMarkdown(job)
	case FormatCSV:
		return JobToCSV(job)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// JobToCSV converts a job's items to CSV with columns: Playlist ID, Name, Status, Added, Total, Error
func JobToCSV(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Playlist ID", "Name", "Status", "Added", "Total", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range job.Items {
		record := []string{
			item.PlaylistID,
			item.PlaylistName,
			string(item.Status),
			strconv.Itoa(item.Added),
			strconv.Itoa(item.Total),
			item.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// JobToMarkdown converts a job to a Markdown report with an items table and the full log
func JobToMarkdown(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s %s\n\n", titleCase(string(job.Kind)), job.ID)
	fmt.Fprintf(&buf, "**Status**: %s\n", job.Status)
	fmt.Fprintf(&buf, "**Created**: %s\n", job.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Updated**: %s\n\n", job.UpdatedAt.UTC().Format(time.RFC3339))

	buf.WriteString("## Items\n\n")
	buf.WriteString("| Playlist | Status | Progress | Error |\n")
	buf.WriteString("|---|---|---|---|\n")
	for _, item := range job.Items {
		fmt.Fprintf(&buf, "| %s | %s | %d/%d | %s |\n",
			escapeCell(item.PlaylistName), item.Status, item.Added, item.Total, escapeCell(item.Error))
	}

	if len(job.Logs) > 0 {
		buf.WriteString("\n## Log\n\n")
		for i, line := range job.Logs {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, line)
		}
	}

	return buf.Bytes(), nil
}

// JobToText converts a job to the plain text summary printed by the CLI
func JobToText(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s %s: %s\n", job.Kind, job.ID, job.Status)
	for _, item := range job.Items {
		fmt.Fprintf(&buf, "%-32s %-10s %d/%d\n", item.PlaylistName, item.Status, item.Added, item.Total)
		if item.Error != "" {
			fmt.Fprintf(&buf, "  %s\n", item.Error)
		}
	}

	return buf.Bytes(), nil
}

// WriteReport renders a job and writes it to path.
//
// Defaults to {job.ID}.{ext} as the filename.
func WriteReport(job *models.Job, format Format, path string) (string, error) {
	if path == "" {
		path = job.ID + "." + extension(format)
	}

	data, err := Render(job, format)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

func extension(format Format) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
