// serve.go implements the "hivecouncil serve" command which runs the HTTP API.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the council HTTP API",
	Long: `Serve the HTTP API: SSE and WebSocket session streams, stored sessions,
council templates, and the provider and archetype catalogs.

Sessions left running by a previous process are marked paused at startup
so they can be resumed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEnv(os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	for _, w := range e.cfg.Validate() {
		e.logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := e.store.MarkInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("marking interrupted sessions: %w", err)
	}
	if n > 0 {
		e.logger.Warn().Int64("sessions", n).Msg("sessions from a previous process marked paused")
	}

	srv := api.NewServer(api.Options{
		Store:       e.store,
		Engine:      e.engine(),
		Providers:   e.providers(),
		Defaults:    e.defaults(),
		CORSOrigins: e.cfg.Server.CORSOrigins,
		Logger:      e.logger,
	})

	addr := e.cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}
	if err := srv.Listen(addr); err != nil {
		return err
	}
	e.logger.Info().
		Str("addr", srv.Addr()).
		Strs("providers", e.providers().Names()).
		Str("database", e.cfg.DatabasePath(e.root)).
		Msg("configuration loaded")

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	e.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	return <-errc
}
