package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/offboardhq/llmbridge/config"
	"github.com/offboardhq/llmbridge/internal/observability"
	"github.com/offboardhq/llmbridge/services/llmclient"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "llmbridge",
		Short:   "Resilient LLM pipeline for the exit-interview assistant",
		Version: version,
	}

	root.AddCommand(
		newChatCmd(),
		newSentimentCmd(),
		newProbeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the client factory the way every
// subcommand needs it.
func setup() (*config.Config, *zap.Logger, *llmclient.Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	factory, err := llmclient.NewFactory(cfg, logger, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init factory: %w", err)
	}

	return cfg, logger, factory, nil
}
