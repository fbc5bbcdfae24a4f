package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/kv"
)

// uiKeys are the terminal's local flags, cleared by reset --ui.
var uiKeys = []string{kv.KeyTypewriterSeen, kv.KeyTheme, kv.KeyLastHelp, kv.KeyRawNodeDraft}

func resetCmd() *cobra.Command {
	var (
		yes bool
		ui  bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every node, field, user and counter",
		Long: `Reset clears the store. Fields are re-seeded with the defaults on next use.
With --ui the terminal's local flags (typewriter seen, theme, help rotation
and the raw node draft) are cleared too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset: refusing to clear %s store without --yes", cfg.Storage.Backend)
			}
			logger := newLogger()
			ctx := cmd.Context()

			b, err := openBackends(logger)
			if err != nil {
				return fmt.Errorf("reset: opening store: %w", err)
			}
			defer func() { _ = b.Close() }()

			if err := b.store.ClearAll(ctx); err != nil {
				return fmt.Errorf("reset: clearing store: %w", err)
			}
			if ui {
				for _, key := range uiKeys {
					if err := b.ui.Delete(ctx, key); err != nil {
						return fmt.Errorf("reset: clearing %s: %w", key, err)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cleared the %s store\n", cfg.Storage.Backend)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	cmd.Flags().BoolVar(&ui, "ui", false, "also clear local terminal flags")
	return cmd
}
