package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/supabase-community/supabase-go"

	"github.com/fieldnodes/field-nodes/internal/config"
	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/store"
	"github.com/fieldnodes/field-nodes/internal/suggest"
	"github.com/fieldnodes/field-nodes/internal/terminal"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "field-nodes",
		Short: "Field Nodes — a terminal for growing a shared graph of thought",
		Long:  "Field Nodes is a command-driven terminal for capturing, connecting and tending knowledge nodes, with HTTP and MCP surfaces over the same store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		terminalCmd(),
		createCmd(),
		getCmd(),
		listCmd(),
		searchCmd(),
		updateCmd(),
		deleteCmd(),
		connectCmd(),
		suggestCmd(),
		fieldsCmd(),
		statsCmd(),
		exportCmd(),
		importCmd(),
		tendCmd(),
		healthCmd(),
		serveCmd(),
		mcpCmd(),
		resetCmd(),
	)
	return rootCmd
}

func newLogger() *slog.Logger {
	return newLoggerTo(os.Stderr)
}

// newLoggerTo builds the configured slog logger writing to w. The pretty
// format renders through charmbracelet/log.
func newLoggerTo(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		format = cfg.Logging.Format
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case "pretty":
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}

// newKV opens the key-value file holding local node records and UI flags.
func newKV() (kv.Store, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return kv.NewMemory(), nil
	}
	return kv.OpenSQLite(cfg.Storage.Path)
}

func newSupabaseClient() (*supabase.Client, error) {
	client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return client, nil
}

func newStore(logger *slog.Logger) (store.NodeStore, error) {
	if cfg.Storage.Backend == config.BackendSupabase {
		client, err := newSupabaseClient()
		if err != nil {
			return nil, err
		}
		return store.NewSupabaseStore(client, logger), nil
	}
	backend, err := newKV()
	if err != nil {
		return nil, err
	}
	return store.NewLocalStore(backend, logger), nil
}

// backends is everything the interactive terminal needs. UI flags always
// live in the local key-value file, whichever backend holds the nodes.
type backends struct {
	store store.NodeStore
	ui    kv.Store
	auth  terminal.Authenticator
	// ownUI is set when ui is not already closed by store.Close.
	ownUI bool
}

func openBackends(logger *slog.Logger) (*backends, error) {
	ui, err := newKV()
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Backend != config.BackendSupabase {
		st := store.NewLocalStore(ui, logger)
		return &backends{store: st, ui: ui, auth: terminal.NewLocalAuth(st, 0)}, nil
	}

	client, err := newSupabaseClient()
	if err != nil {
		_ = ui.Close()
		return nil, err
	}
	st := store.NewSupabaseStore(client, logger)
	return &backends{
		store: st,
		ui:    ui,
		auth:  terminal.NewSupabaseAuth(client.Auth, st, cfg.Supabase.EmailDomain, logger),
		ownUI: true,
	}, nil
}

func (b *backends) Close() error {
	err := b.store.Close()
	if b.ownUI {
		if uiErr := b.ui.Close(); err == nil {
			err = uiErr
		}
	}
	return err
}

// newSuggester uses Claude when an API key is configured and the keyword
// heuristic otherwise.
func newSuggester(logger *slog.Logger) suggest.Suggester {
	if cfg.Claude.APIKey == "" {
		return suggest.NewHeuristic(logger)
	}
	return suggest.NewClaude(cfg.Claude.APIKey, cfg.Claude.Model, logger)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
