package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the store and the suggestion backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			allOK := true

			// Check the node store.
			st, err := newStore(logger)
			if err != nil {
				fmt.Fprintf(out, "Store (%s): FAIL (%v)\n", cfg.Storage.Backend, err)
				allOK = false
			} else {
				defer func() { _ = st.Close() }()
				if _, err := st.Counters(ctx); err != nil {
					fmt.Fprintf(out, "Store (%s): FAIL (%v)\n", cfg.Storage.Backend, err)
					allOK = false
				} else {
					fmt.Fprintf(out, "Store (%s): OK\n", cfg.Storage.Backend)
				}
			}

			// Claude is optional; without a key suggestions use keywords.
			if cfg.Claude.APIKey == "" {
				fmt.Fprintln(out, "Claude API: SKIP (no API key; keyword suggestions)")
			} else {
				fmt.Fprintf(out, "Claude API: OK (%s)\n", cfg.Claude.Model)
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
