package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/terminal"
	"github.com/fieldnodes/field-nodes/internal/tui"
	"github.com/fieldnodes/field-nodes/internal/typewriter"
)

func terminalCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:     "terminal",
		Aliases: []string{"term"},
		Short:   "Open the interactive field terminal",
		Long: `Opens the full-screen field terminal. Logs go to logging.file while the
terminal owns the screen.

Use --plain for a line-oriented session without animation, for example when
input is piped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if plain {
				logger := newLogger()
				b, err := openBackends(logger)
				if err != nil {
					return fmt.Errorf("terminal: opening store: %w", err)
				}
				defer func() { _ = b.Close() }()

				machine := terminal.New(b.store, b.ui, logger,
					terminal.WithAuthenticator(b.auth),
					terminal.WithSuggester(newSuggester(logger)))
				return runPlain(cmd, machine, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o750); err != nil {
				return fmt.Errorf("terminal: creating log dir: %w", err)
			}
			logFile, err := tea.LogToFile(cfg.Logging.File, "field-nodes")
			if err != nil {
				return fmt.Errorf("terminal: opening log file: %w", err)
			}
			defer func() { _ = logFile.Close() }()
			logger := newLoggerTo(logFile)

			b, err := openBackends(logger)
			if err != nil {
				return fmt.Errorf("terminal: opening store: %w", err)
			}
			defer func() { _ = b.Close() }()

			machine := terminal.New(b.store, b.ui, logger,
				terminal.WithAuthenticator(b.auth),
				terminal.WithSuggester(newSuggester(logger)))
			typer := typewriter.New(
				typewriter.WithSeenStore(b.ui),
				typewriter.WithDelays(cfg.Typewriter.Delays()),
				typewriter.WithSkip(!cfg.Typewriter.Enabled),
				typewriter.WithLogger(logger),
			)

			m := tui.New(ctx, machine, terminal.NewSession(), typer, b.ui, logger)
			if err := tui.Run(ctx, m); err != nil {
				return fmt.Errorf("terminal: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "line-oriented session without the full-screen UI")
	return cmd
}

// runPlain reads one command per line from r until EOF.
func runPlain(cmd *cobra.Command, machine *terminal.Machine, r io.Reader, w io.Writer) error {
	ctx := cmd.Context()
	sess := terminal.NewSession()

	show := func(out terminal.Output) {
		for _, line := range out.Texts() {
			fmt.Fprintln(w, line)
		}
	}
	show(machine.Boot(sess))

	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprintf(w, "%s@fieldnodes:~%s$ ", sess.Handle(), sess.Stage)
		if !scanner.Scan() {
			fmt.Fprintln(w)
			break
		}
		show(machine.Handle(ctx, sess, scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("terminal: reading input: %w", err)
	}
	return nil
}
