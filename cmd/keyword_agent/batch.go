package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-agent/internal/observability"
	"github.com/jonathan/keyword-agent/internal/types"
)

type batchOptions struct {
	seeds       string
	seedsFile   string
	maxKeywords int
	country     string
	questions   bool
	longTail    bool
	format      string
	output      string
}

func newBatchCmd(global *globalOptions) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch [seed keyword...]",
		Short: "Research several seed phrases at once",
		Long: `Researches every seed concurrently. A failing seed is reported in the output without
affecting the others. Seeds come from arguments, --seeds (comma-separated) and --file
(one per line).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.seeds, "seeds", "s", "", "Comma-separated seed keywords")
	cmd.Flags().StringVar(&opts.seedsFile, "file", "", "File with one seed keyword per line")
	cmd.Flags().IntVarP(&opts.maxKeywords, "max-keywords", "m", types.DefaultBatchKeywords, "Maximum keywords per seed (1-100)")
	cmd.Flags().StringVarP(&opts.country, "country", "c", types.DefaultCountry, "Target country (US, GB, CA, AU, IN)")
	cmd.Flags().BoolVar(&opts.questions, "questions", true, "Include question-style keywords")
	cmd.Flags().BoolVar(&opts.longTail, "long-tail", true, "Include long-tail keywords")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "summary", "Output format: summary or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write json output to this file instead of stdout")

	return cmd
}

func runBatch(cmd *cobra.Command, global *globalOptions, opts *batchOptions, args []string) error {
	format := strings.ToLower(opts.format)
	if format != "summary" && format != "json" {
		return fmt.Errorf("unsupported batch format %q (want summary or json)", opts.format)
	}

	seeds, err := collectSeeds(args, opts.seeds, opts.seedsFile)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return fmt.Errorf("at least one seed keyword is required (arguments, --seeds or --file)")
	}

	_, _, eng, err := setup(cmd, global)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	result := eng.Batch.Run(commandContext(cmd), types.BatchRequest{
		Seeds:            seeds,
		MaxKeywords:      opts.maxKeywords,
		Country:          opts.country,
		IncludeQuestions: opts.questions,
		IncludeLongTail:  opts.longTail,
	})
	if err := commandContext(cmd).Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "summary" {
		observability.NewPrinter(out).PrintBatchSummary(result)
		return nil
	}
	return writeOutput(out, opts.output, func(w io.Writer) error {
		return writeJSON(w, result)
	})
}

// collectSeeds merges seeds from arguments, a comma-separated list and a file
func collectSeeds(args []string, list, path string) ([]string, error) {
	seeds := append([]string{}, args...)
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open seeds file: %w", err)
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			seeds = append(seeds, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read seeds file: %w", err)
		}
	}
	return seeds, nil
}
