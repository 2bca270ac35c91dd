package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offboardhq/llmbridge/services/interview"
)

func newSentimentCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "sentiment [text]",
		Short: "Classify the sentiment of a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, factory, err := setup()
			if err != nil {
				return err
			}
			defer factory.Close()
			defer func() { _ = logger.Sync() }()

			if provider == "" {
				provider = cfg.ActiveProvider
			}
			client, err := factory.Client(provider)
			if err != nil {
				return err
			}

			svc := interview.NewService(client, interview.Config{}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := svc.AnalyzeSentiment(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Printf("Label: %s\nScore: %+.2f\n", result.Label, result.Score)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider to use (defaults to the configured active provider)")
	return cmd
}
