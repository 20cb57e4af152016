package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gemini-router/internal/config"
	"gemini-router/internal/router"
)

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "gemini-router",
		Short: "OpenAI-compatible chat proxy for Gemini and OpenRouter",
		Long: `gemini-router accepts OpenAI-style chat completion requests, optionally
enriches them with web search results and forwards a single assembled prompt
to Gemini. Models prefixed with "openrouter:" are sent to OpenRouter instead.

Configuration is read from an optional YAML file and from the environment
(GEMINI_API_KEY, OPENROUTER_API_KEY, TAVILY_API_KEY, PORT, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML configuration file (optional)")

	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(newModelsCmd(&cfgPath))

	return root
}

func newModelsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model identifiers exposed by /v1/models",
		Long: `List the configured model identifiers and the provider each one routes to.

Credentials are not required: the configuration is read but not validated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(*cfgPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER")
			for _, m := range router.Describe(cfg.ExposedModels()) {
				fmt.Fprintf(w, "%s\t%s\n", m.ID, m.Provider)
			}
			return w.Flush()
		},
	}
}

// setupLogging installs the process-wide slog handler.
func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
