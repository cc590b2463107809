package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-agent/internal/config"
	"github.com/jonathan/keyword-agent/internal/engine"
	"github.com/jonathan/keyword-agent/internal/logger"
)

// globalOptions holds the flags shared by every command
type globalOptions struct {
	configPath      string
	apiKey          string
	model           string
	requireLLM      bool
	metricsProvider string
	concurrency     int
	logLevel        string
	logFile         string
	verbose         bool

	// getenv is os.Getenv outside tests
	getenv func(string) string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{getenv: os.Getenv}

	root := &cobra.Command{
		Use:   "keyword_agent",
		Short: "Keyword opportunity research CLI and HTTP API",
		Long: `keyword_agent expands a seed phrase into candidate search keywords, estimates their
volume, competition and cost, and ranks them by opportunity.

Configuration can be loaded from a JSON file using --config. Command-line flags override
config file values; secrets fall back to environment variables (GEMINI_API_KEY,
METRICS_PROVIDER_URL, METRICS_PROVIDER_KEY, GOOGLE_SEARCH_API_KEY, GOOGLE_SEARCH_CX).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")
	flags.StringVar(&opts.apiKey, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	flags.StringVar(&opts.model, "model", "", "Override the model used for keyword suggestions")
	flags.BoolVar(&opts.requireLLM, "require-llm", false, "Fail instead of falling back to templates when no API key is configured")
	flags.StringVar(&opts.metricsProvider, "metrics-provider", "", "Metrics provider: none, http or search")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Candidates measured in parallel")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Print detailed results")

	root.AddCommand(newResearchCmd(opts))
	root.AddCommand(newBatchCmd(opts))
	root.AddCommand(newServeCmd(opts))

	return root
}

// loadSettings resolves the effective configuration: config file, then flags
// that were explicitly set, then environment fallbacks, then defaults.
func loadSettings(cmd *cobra.Command, opts *globalOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = opts.apiKey
	}
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("require-llm") {
		cfg.RequireLLM = opts.requireLLM
	}
	if flags.Changed("metrics-provider") {
		cfg.MetricsProvider = opts.metricsProvider
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}

	cfg.ApplyEnv(opts.getenv)
	cfg = cfg.MergeWithDefaults(config.Defaults())

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setup loads settings and builds the logger and engine for a command
func setup(cmd *cobra.Command, opts *globalOptions) (config.Config, *logrus.Logger, *engine.Engine, error) {
	cfg, err := loadSettings(cmd, opts)
	if err != nil {
		return cfg, nil, nil, err
	}

	log, err := logger.New(cfg.LogLevel, cmd.ErrOrStderr(), cfg.LogFile)
	if err != nil {
		return cfg, nil, nil, err
	}

	eng, err := engine.New(commandContext(cmd), cfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, log, eng, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
