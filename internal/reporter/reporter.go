// Package reporter renders matching suggestions and fee generation
// outcomes for terminal display and programmatic consumption.
//
// Supported output formats:
//   - Console: human-readable tabular output
//   - JSON: structured output for downstream tooling
//   - CSV: spreadsheet-friendly export of suggestions
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"membership-billing-service/internal/billing"
	"membership-billing-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a format name from the CLI surface.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return FormatConsole, nil
	}
	if !f.IsValid() {
		return "", fmt.Errorf("unknown output format %q: must be console, json or csv", s)
	}
	return f, nil
}

// Reporter renders match results and generation batches.
type Reporter struct {
	// IncludeReasons includes the per-suggestion explanations in the
	// console rendering.
	IncludeReasons bool
}

// NewReporter creates a reporter with reasons enabled.
func NewReporter() *Reporter {
	return &Reporter{IncludeReasons: true}
}

// matchReport is the JSON envelope for a batch of suggestions.
type matchReport struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Summary     matchSummary          `json:"summary"`
	Results     []*models.MatchResult `json:"results"`
}

type matchSummary struct {
	Total     int `json:"total"`
	Proposed  int `json:"proposed"`
	Partial   int `json:"partial"`
	Unmatched int `json:"unmatched"`
}

func summarize(results []*models.MatchResult) matchSummary {
	s := matchSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.StatusVoorgesteld:
			s.Proposed++
		case models.StatusGedeeltelijkGematcht:
			s.Partial++
		default:
			s.Unmatched++
		}
	}
	return s
}

// WriteMatchReport renders a batch of suggestions in the given format.
func (r *Reporter) WriteMatchReport(w io.Writer, results []*models.MatchResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return r.writeMatchJSON(w, results)
	case FormatCSV:
		return r.writeMatchCSV(w, results)
	case FormatConsole, "":
		return r.writeMatchConsole(w, results)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func (r *Reporter) writeMatchJSON(w io.Writer, results []*models.MatchResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(matchReport{
		GeneratedAt: time.Now().UTC(),
		Summary:     summarize(results),
		Results:     results,
	})
}

func (r *Reporter) writeMatchCSV(w io.Writer, results []*models.MatchResult) error {
	writer := csv.NewWriter(w)
	header := []string{"booking_date", "amount", "side", "counterparty", "reference", "score", "status", "matched_fee_id", "matched_member_id", "category_id"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, result := range results {
		tx := result.Transaction
		row := []string{
			tx.BookingDate.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			string(tx.Side),
			tx.Counterparty,
			tx.Reference,
			strconv.Itoa(result.Score),
			string(result.Status),
			result.MatchedFeeID,
			result.MatchedMemberID,
			result.CategoryID,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (r *Reporter) writeMatchConsole(w io.Writer, results []*models.MatchResult) error {
	summary := summarize(results)
	fmt.Fprintf(w, "Matching suggestions: %d total, %d proposed, %d partial, %d unmatched\n\n",
		summary.Total, summary.Proposed, summary.Partial, summary.Unmatched)

	fmt.Fprintf(w, "%-12s %10s %-6s %-24s %5s %-22s\n",
		"DATE", "AMOUNT", "SIDE", "COUNTERPARTY", "SCORE", "STATUS")
	fmt.Fprintln(w, strings.Repeat("-", 84))

	for _, result := range results {
		tx := result.Transaction
		fmt.Fprintf(w, "%-12s %10s %-6s %-24s %5d %-22s\n",
			tx.BookingDate.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			tx.Side,
			truncate(tx.Counterparty, 24),
			result.Score,
			result.Status)
		if r.IncludeReasons {
			for _, reason := range result.Reasons {
				fmt.Fprintf(w, "             - %s\n", reason)
			}
		}
	}
	return nil
}

// WriteGenerationReport renders the outcome of one tenant generation run.
func (r *Reporter) WriteGenerationReport(w io.Writer, result *billing.BatchResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case FormatConsole, "":
		fmt.Fprintf(w, "Tenant %s (%s strategy): %s\n", result.TenantID, result.Strategy, result.Summary())
		for _, fee := range result.Generated {
			fmt.Fprintf(w, "  %-12s %s  %s %s\n",
				fee.MemberID,
				fee.PeriodStart.Format("2006-01-02"),
				fee.Amount.StringFixed(2),
				fee.Status)
		}
		for _, genErr := range result.Errors {
			fmt.Fprintf(w, "  error: %s\n", genErr.Message)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
