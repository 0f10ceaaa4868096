package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleximart-etl/internal/web"
)

func serveCmd() *cobra.Command {
	var allowTrigger bool

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and quality reports over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var run web.RunFunc
			if allowTrigger {
				run = a.runOnce
			}
			server := web.NewServer(ctx, a.cfg.Server, a.store, run)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}

	c.Flags().BoolVar(&allowTrigger, "allow-trigger", true, "Allow POST /api/runs to start a pipeline run")
	return c
}
