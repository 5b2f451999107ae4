package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lumen/internal/config"
	"lumen/internal/providers/lumenapi"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "print the interaction history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			errorColor.Fprintf(cmd.ErrOrStderr(), "failed to load config: %v\n", err)
			return err
		}

		client := lumenapi.NewClient(
			lumenapi.Config{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout},
			nil,
			zerolog.Nop(),
			nil,
		)
		entries, err := client.FetchHistory(cmd.Context())
		if err != nil {
			errorColor.Fprintf(cmd.ErrOrStderr(), "failed to fetch history: %v\n", err)
			return err
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}
