package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-prices/checkpoint"
	"github.com/spf13/cobra"
)

func newCheckpointCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or remove the stored checkpoint.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the progress recorded in the checkpoint.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, opts, func(store checkpoint.Store, logger *slog.Logger) error {
					out := cmd.OutOrStdout()
					cat, ok := store.Load()
					if !ok {
						fmt.Fprintln(out, "no checkpoint")
						return nil
					}
					p := cat.Progress()
					fmt.Fprintf(out, "Products:  %d (%d invalid)\n", p.Products, p.InvalidProducts)
					fmt.Fprintf(out, "Links:     %d\n", p.Links)
					fmt.Fprintf(out, "Priced:    %d\n", p.Priced)
					fmt.Fprintf(out, "Failed:    %d\n", p.Failed)
					fmt.Fprintf(out, "Pending:   %d\n", p.Pending())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the checkpoint so the next run fetches a fresh catalog.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, opts, func(store checkpoint.Store, logger *slog.Logger) error {
					if err := store.Clear(); err != nil {
						return err
					}
					logger.Info("checkpoint cleared")
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(cmd *cobra.Command, opts *rootOptions, fn func(checkpoint.Store, *slog.Logger) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, _ := newLogger(cfg.Verbose)

	store, err := checkpoint.Open(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store, logger)
}
