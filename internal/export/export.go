// Package export renders research results as CSV or JSON documents.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jonathan/keyword-agent/internal/schemas"
	"github.com/jonathan/keyword-agent/internal/types"
)

// Format is an export document format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Headers is the CSV header row
var Headers = []string{
	"Keyword", "Opportunity Score", "Search Volume", "Competition Score",
	"Difficulty", "Intent", "CPC Estimate", "Ranking Probability",
	"Word Count",
}

// ParseFormat resolves a format name, case-insensitively
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or json)", name)
	}
}

// Filename returns the download name for a seed, e.g. keywords_digital_marketing.csv
func Filename(seed string, format Format) string {
	return fmt.Sprintf("keywords_%s.%s", strings.ReplaceAll(strings.TrimSpace(seed), " ", "_"), format)
}

// ContentType returns the MIME type for format
func ContentType(format Format) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Write renders result to w in format
func Write(w io.Writer, result *types.ResearchResult, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatJSON:
		return WriteJSON(w, result)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteCSV writes the header row and one row per keyword
func WriteCSV(w io.Writer, result *types.ResearchResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, kw := range result.Keywords {
		if err := cw.Write(row(kw)); err != nil {
			return fmt.Errorf("failed to write CSV row for %q: %w", kw.Text, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func row(kw types.ScoredKeyword) []string {
	return []string{
		kw.Text,
		formatFloat(kw.OpportunityScore),
		strconv.Itoa(kw.SearchVolume),
		formatFloat(kw.CompetitionScore),
		strconv.Itoa(kw.Difficulty),
		string(kw.Intent),
		formatFloat(kw.CPCEstimate),
		formatFloat(kw.RankingProbability),
		strconv.Itoa(kw.WordCount),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteJSON writes the indented result after checking it against the result schema
func WriteJSON(w io.Writer, result *types.ResearchResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := schemas.Validate(schemas.ResearchResult, string(data)); err != nil {
		return fmt.Errorf("result does not match export schema: %w", err)
	}

	data = append(data, '\n')
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
