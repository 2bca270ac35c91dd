package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offboardhq/llmbridge/services/interview"
	"github.com/offboardhq/llmbridge/services/providers"
)

func newChatCmd() *cobra.Command {
	var (
		provider     string
		model        string
		systemPrompt string
		maxTokens    int
		temperature  float64
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the assistant and print the reply",
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

			svc := interview.NewService(client, interview.Config{
				SystemPrompt: systemPrompt,
			}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reply, err := svc.GenerateReply(ctx, []interview.Turn{
				{Role: providers.RoleUser, Content: strings.Join(args, " ")},
			}, interview.ReplyOptions{
				Model:       model,
				MaxTokens:   maxTokens,
				Temperature: temperature,
			})
			if err != nil {
				return err
			}

			fmt.Println(reply)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider to use (defaults to the configured active provider)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt for the assistant")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "cap on generated tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	return cmd
}
