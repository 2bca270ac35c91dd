package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var withModels bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check provider health and circuit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, factory, err := setup()
			if err != nil {
				return err
			}
			defer factory.Close()
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tCIRCUIT\tFAILURES\tMODELS")
			for _, name := range factory.Providers() {
				client, err := factory.Client(name)
				if err != nil {
					return err
				}

				available := client.Available(ctx)
				status := client.CircuitStatus()

				models := "-"
				if withModels && available {
					if list, err := client.Models(ctx); err == nil && len(list) > 0 {
						models = strings.Join(list, ", ")
					}
				}

				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n", name, available, status.State, status.FailureCount, models)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&withModels, "models", false, "list each provider's advertised models")
	return cmd
}
