// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/keyword-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of keywords listed in the top box
	maxItemsToShow = 15
	// keywordColumn is the width of the keyword column in listings
	keywordColumn = 35
)

// Printer handles formatted output for research results
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4), boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSummary outputs the headline numbers of a research run.
func (p *Printer) PrintSummary(result *types.ResearchResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Seed:        %s\n", result.SeedKeyword))
	sb.WriteString(fmt.Sprintf("Country:     %s\n", result.Country))
	sb.WriteString(fmt.Sprintf("Keywords:    %d\n", result.TotalKeywords))
	sb.WriteString(fmt.Sprintf("Time:        %.2fs\n", result.ProcessingTime.Seconds()))
	sb.WriteString(fmt.Sprintf("API calls:   %d\n", result.Metadata.APICalls))
	sb.WriteString(fmt.Sprintf("Source:      %s\n", result.Metadata.GenerationSource))
	sb.WriteString(fmt.Sprintf("Generated:   %d raw", result.Metadata.RawKeywordsGenerated))
	if result.Metadata.DroppedCandidates > 0 {
		sb.WriteString(fmt.Sprintf(", %d dropped", result.Metadata.DroppedCandidates))
	}

	if breakdown := intentBreakdown(result.Keywords); breakdown != "" {
		sb.WriteString("\n\nIntent mix:  " + breakdown)
	}

	p.printBox(fmt.Sprintf("RESULTS FOR %q", result.SeedKeyword), sb.String())
}

// PrintTopKeywords outputs the best keywords with their key metrics.
func (p *Printer) PrintTopKeywords(result *types.ResearchResult) {
	if result == nil || len(result.Keywords) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(result.Keywords), maxItemsToShow)
	for i := 0; i < count; i++ {
		kw := result.Keywords[i]
		sb.WriteString(fmt.Sprintf("%2d. %s %5.1f  vol %6d  comp %.2f\n",
			i+1, pad(truncate(kw.Text, 30), 30), kw.OpportunityScore, kw.SearchVolume, kw.CompetitionScore))
	}
	if len(result.Keywords) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more keywords", len(result.Keywords)-maxItemsToShow))
	}

	p.printBox("TOP KEYWORDS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintKeywordTable outputs every keyword, one per line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintKeywordTable(result *types.ResearchResult) {
	if result == nil {
		return
	}

	fmt.Fprintf(p.out, "Results for '%s'\n", result.SeedKeyword)
	fmt.Fprintf(p.out, "Found %d keywords in %.2fs\n", result.TotalKeywords, result.ProcessingTime.Seconds())
	fmt.Fprintf(p.out, "API calls: %d\n", result.Metadata.APICalls)
	fmt.Fprintln(p.out, strings.Repeat("-", 100))

	for i, kw := range result.Keywords {
		fmt.Fprintf(p.out, "%2d. %s Score: %5.1f | Volume: %6d | Comp: %.2f | Intent: %-13s | Rank: %.0f%%\n",
			i+1, pad(truncate(kw.Text, keywordColumn), keywordColumn), kw.OpportunityScore,
			kw.SearchVolume, kw.CompetitionScore, kw.Intent, kw.RankingProbability*100)
	}
}

// PrintBatchSummary outputs one line per seed plus the keyword total.
func (p *Printer) PrintBatchSummary(batch types.BatchResult) {
	if len(batch) == 0 {
		return
	}

	seeds := make([]string, 0, len(batch))
	for seed := range batch {
		seeds = append(seeds, seed)
	}
	sort.Strings(seeds)

	var sb strings.Builder
	for _, seed := range seeds {
		entry := batch[seed]
		if entry.Failed() {
			sb.WriteString(fmt.Sprintf("[-] %s: %s\n", seed, entry.Err.Error))
			continue
		}
		sb.WriteString(fmt.Sprintf("[+] %s: %d keywords\n", seed, entry.Result.TotalKeywords))
	}
	sb.WriteString(fmt.Sprintf("\n%d of %d seeds succeeded, %d keywords total",
		batch.Succeeded(), len(batch), batch.TotalKeywords()))

	p.printBox("BATCH RESULTS", sb.String())
}

func intentBreakdown(keywords []types.ScoredKeyword) string {
	if len(keywords) == 0 {
		return ""
	}
	counts := make(map[types.Intent]int)
	for _, kw := range keywords {
		counts[kw.Intent]++
	}
	order := []types.Intent{types.IntentTransactional, types.IntentCommercial, types.IntentInformational, types.IntentNavigational}
	parts := make([]string, 0, len(order))
	for _, intent := range order {
		if n := counts[intent]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", intent, n))
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
