package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gemini-router/internal/config"
	"gemini-router/internal/metrics"
	"gemini-router/internal/provider"
	providerfactory "gemini-router/internal/provider/factory"
	"gemini-router/internal/router"
	"gemini-router/internal/search"
	"gemini-router/internal/server"
	"gemini-router/internal/translator"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the proxy server.

Examples:
  # Start with environment configuration only
  GEMINI_API_KEY=... gemini-router serve

  # Start with a config file and override the port
  gemini-router serve --config config.yaml --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			setupLogging(cfg.Log)

			srv, err := buildServer(cfg)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&overridePort, "port", "p", 0, "override server port from configuration")

	return cmd
}

// buildServer wires the request pipeline from cfg.
func buildServer(cfg config.Config) (*server.Server, error) {
	var m *metrics.Metrics
	if cfg.Metrics.On() {
		m = metrics.New(nil)
	}

	client := providerfactory.NewHTTPClient(cfg.Upstream.Timeout)

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return nil, err
	}

	caller, err := provider.NewCaller(client, provider.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
	}, m)
	if err != nil {
		return nil, err
	}

	dispatcher, err := provider.NewDispatcher(registry, caller)
	if err != nil {
		return nil, err
	}

	enricher := search.New(cfg.Search, cfg.Sentinel.NoSearchResults, client, m)
	if !enricher.Enabled() {
		slog.Info("search enrichment disabled: no search api key configured")
	}

	rt, err := router.New(enricher, dispatcher, translator.NewFormatter(nil), cfg.ExposedModels())
	if err != nil {
		return nil, err
	}

	return server.New(cfg, rt, m)
}
