package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/api"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the field over HTTP/JSON",
		Long: `Serve exposes nodes, fields, connections and suggestions as a JSON API.
Requests need "Authorization: Bearer <api.auth_token>" when a token is set.
The server drains in-flight requests on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			if addr == "" {
				addr = cfg.API.ListenAddr
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("serve: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("serve: reading field: %w", err)
			}
			if cfg.API.AuthToken == "" {
				logger.Warn("serve: field is open to anyone who can reach it; set FIELD_NODES_API_AUTH_TOKEN to require a bearer token")
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(st, newSuggester(logger), logger, cfg.API.AuthToken, cfg.API.CORSOrigins).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			listenErr := make(chan error, 1)
			go func() {
				defer close(listenErr)
				logger.Info("serve: field open", "addr", addr, "backend", cfg.Storage.Backend, "nodes", stats.TotalNodes)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					listenErr <- fmt.Errorf("serve: listening on %s: %w", addr, err)
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("serve: closing field, draining requests")
			case err := <-listenErr:
				return err
			}

			const drainTimeout = 10 * time.Second
			if err := api.Shutdown(httpSrv, drainTimeout); err != nil {
				return fmt.Errorf("serve: draining requests: %w", err)
			}
			if err := <-listenErr; err != nil {
				return err
			}
			logger.Info("serve: field closed")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.listen_addr)")
	return cmd
}
