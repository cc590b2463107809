package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-agent/internal/server"
	"github.com/jonathan/keyword-agent/internal/server/ratelimit"
)

type serveOptions struct {
	port       int
	corsOrigin string
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server exposing keyword research endpoints:

  POST /api/research          research one seed
  POST /api/research/stream   research one seed, streaming stage progress (SSE)
  POST /api/batch-research    research several seeds
  POST /api/export/{format}   research one seed and download csv or json
  GET  /api/health            health check
  GET  /metrics               Prometheus metrics`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, global, opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&opts.corsOrigin, "cors-origin", "", "Allowed CORS origin (default *)")

	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, opts *serveOptions) error {
	cfg, log, eng, err := setup(cmd, global)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if cmd.Flags().Changed("port") {
		cfg.Port = opts.port
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.CORSOrigin = opts.corsOrigin
	}

	srv := server.New(server.Config{
		Port:           cfg.Port,
		CORSOrigin:     cfg.CORSOrigin,
		RequestTimeout: cfg.RequestTimeout.Std(),
		LLMEnabled:     eng.LLMEnabled(),
		RateLimit:      ratelimit.LoadConfigFrom(global.getenv),
	}, eng.Research, eng.Batch,
		server.WithMetricsHandler(eng.Telemetry.Handler()),
		server.WithLogger(log),
	)

	log.WithField("provider", eng.ProviderName()).Info("keyword research API ready")
	return srv.Start(commandContext(cmd))
}
