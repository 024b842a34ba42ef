// Package cli formats command results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/dcia/internal/indexer"
	"github.com/hyperjump/dcia/internal/keyword"
	"github.com/hyperjump/dcia/internal/maintenance"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer prints an answer and the sources it was grounded on.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range resp.Sources {
		fmt.Fprintf(w, "  %d. %s (%s) %.2f%%\n", i+1, src.Name, src.Type, src.RelevanceScore)
	}
	return nil
}

// WriteSummary prints the outcome of an embedding refresh.
func WriteSummary(w io.Writer, s *maintenance.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "job:            %s\n", s.JobID)
	fmt.Fprintf(w, "candidates:     %d\n", s.Candidates)
	fmt.Fprintf(w, "embedded:       %d\n", s.Embedded)
	fmt.Fprintf(w, "skipped:        %d\n", s.Skipped)
	fmt.Fprintf(w, "failed:         %d\n", s.Failed)
	fmt.Fprintf(w, "index_created:  %t\n", s.IndexCreated)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "duration:       %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.Err != "" {
		fmt.Fprintf(w, "error:          %s\n", s.Err)
	}
	for _, n := range s.Nodes {
		if n.Outcome == maintenance.OutcomeFailed {
			fmt.Fprintf(w, "  failed %s: %s\n", n.NodeID, n.Error)
		}
	}
	return nil
}

// WriteImportReports prints one line per imported catalog file.
func WriteImportReports(w io.Writer, reports []*indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, reports)
	}
	for _, r := range reports {
		if r.Unchanged {
			fmt.Fprintf(w, "%s: unchanged\n", r.Path)
			continue
		}
		fmt.Fprintf(w, "%s: %d subtypes, %d evidence items, %d locations, %d descriptions changed\n",
			r.Path, r.Stats.Subtypes, r.Stats.Evidence, r.Stats.Locations, r.Stats.Invalidated)
		if r.Refresh != nil {
			fmt.Fprintf(w, "  embedding refresh %s started for %d nodes\n", r.Refresh.JobID, r.Refresh.CandidateCount)
		}
	}
	return nil
}

// WriteKeywordResults prints keyword hits, or the spelling suggestion when there are none.
func WriteKeywordResults(w io.Writer, res *keyword.Results, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(res.Hits), res.Query)
	if len(res.Hits) == 0 && res.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", res.Suggestion)
		return nil
	}
	for i, hit := range res.Hits {
		label := "Unknown"
		if len(hit.Node.Labels) > 0 {
			label = hit.Node.Labels[0]
		}
		fmt.Fprintf(w, "%d. [%s] %s  (score %.4f)\n", i+1, label, hit.Node.Name, hit.Score)
		if hit.Node.Description != "" {
			fmt.Fprintf(w, "   %s\n", TruncateWords(hit.Node.Description, 24))
		}
	}
	return nil
}

// Status summarizes the knowledge store.
type Status struct {
	Backend     string `json:"backend"`
	Reachable   bool   `json:"reachable"`
	Nodes       int    `json:"nodes"`
	Embedded    int    `json:"embedded"`
	Pending     int    `json:"pending"`
	Subtypes    int    `json:"crime_subtypes"`
	VectorIndex bool   `json:"vector_index"`
	IndexName   string `json:"index_name"`
	Dimensions  int    `json:"dimensions"`

	// DiskUsageBytes is set for file-backed stores.
	DiskUsageBytes *int64               `json:"disk_usage_bytes,omitempty"`
	LastRefresh    *maintenance.Summary `json:"last_refresh,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// WriteStatus prints a status report.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "backend:         %s\n", s.Backend)
	fmt.Fprintf(w, "reachable:       %t\n", s.Reachable)
	if s.Error != "" {
		fmt.Fprintf(w, "error:           %s\n", utils.Truncate(s.Error, 200))
		return nil
	}
	fmt.Fprintf(w, "nodes:           %d   # all categories\n", s.Nodes)
	fmt.Fprintf(w, "embedded:        %d\n", s.Embedded)
	fmt.Fprintf(w, "pending:         %d   # eligible nodes without an embedding\n", s.Pending)
	fmt.Fprintf(w, "crime_subtypes:  %d\n", s.Subtypes)
	fmt.Fprintf(w, "vector_index:    %s (%d dims) exists=%t\n", s.IndexName, s.Dimensions, s.VectorIndex)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:      %s\n", formatBytes(*s.DiskUsageBytes))
	}
	if s.LastRefresh != nil {
		fmt.Fprintf(w, "last_refresh:    %s embedded=%d failed=%d\n",
			s.LastRefresh.FinishedAt.Format(time.RFC3339), s.LastRefresh.Embedded, s.LastRefresh.Failed)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
