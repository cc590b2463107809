package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-agent/internal/export"
	"github.com/jonathan/keyword-agent/internal/observability"
	"github.com/jonathan/keyword-agent/internal/types"
)

type researchOptions struct {
	maxKeywords int
	country     string
	questions   bool
	longTail    bool
	format      string
	output      string
}

func newResearchCmd(global *globalOptions) *cobra.Command {
	opts := &researchOptions{}
	cmd := &cobra.Command{
		Use:   "research <seed keyword>",
		Short: "Research keyword opportunities for one seed phrase",
		Long: `Generates candidate keywords for the seed phrase, estimates their metrics and prints
them ranked by opportunity score. Use --format to emit CSV or JSON instead of a table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd, global, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVarP(&opts.maxKeywords, "max-keywords", "m", types.DefaultMaxKeywords, "Maximum keywords to return (1-100)")
	cmd.Flags().StringVarP(&opts.country, "country", "c", types.DefaultCountry, "Target country (US, GB, CA, AU, IN)")
	cmd.Flags().BoolVar(&opts.questions, "questions", true, "Include question-style keywords")
	cmd.Flags().BoolVar(&opts.longTail, "long-tail", true, "Include long-tail keywords")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format: table, csv or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write csv or json output to this file instead of stdout")

	return cmd
}

func runResearch(cmd *cobra.Command, global *globalOptions, opts *researchOptions, seed string) error {
	format := strings.ToLower(opts.format)
	var exportFormat export.Format
	if format != "table" {
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		exportFormat = f
	}

	cfg, _, eng, err := setup(cmd, global)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx, cancel := context.WithTimeout(commandContext(cmd), cfg.RequestTimeout.Std())
	defer cancel()

	result, err := eng.Research.Research(ctx, types.ResearchRequest{
		SeedKeyword:      seed,
		MaxKeywords:      opts.maxKeywords,
		Country:          opts.country,
		IncludeQuestions: opts.questions,
		IncludeLongTail:  opts.longTail,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exportFormat == "" {
		printer := observability.NewPrinter(out)
		if cfg.Verbose {
			printer.PrintSummary(result)
			printer.PrintTopKeywords(result)
			return nil
		}
		printer.PrintKeywordTable(result)
		return nil
	}

	return writeOutput(out, opts.output, func(w io.Writer) error {
		return export.Write(w, result, exportFormat)
	})
}

// writeOutput renders to path when set, otherwise to out
func writeOutput(out io.Writer, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(out)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported to %s\n", path)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
