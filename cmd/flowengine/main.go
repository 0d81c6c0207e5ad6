// Package main implements the flowengine CLI: a durable, multi-tenant flow
// execution engine assembled from semstreams components.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/flowengine/config"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		natsURL    string
	)

	rootCmd := &cobra.Command{
		Use:     "flowengine",
		Short:   "Durable, multi-tenant flow execution engine",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS server URL (default: embedded)")

	rootCmd.AddCommand(newServeCmd(&configPath, &natsURL))
	rootCmd.AddCommand(newValidateRulesCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(configPath, natsURL string) (*config.Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if natsURL != "" {
		cfg.NATS.URL = natsURL
		cfg.NATS.Embedded = false
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newServeCmd(configPath, natsURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the flow orchestrator against a NATS server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}
