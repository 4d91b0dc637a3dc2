package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var runAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the admin HTTP API until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		addr := svc.Config().HTTP.Addr
		if runAddr != "" {
			addr = runAddr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		svc.Start(ctx)

		errCh := make(chan error, 1)
		go func() {
			slog.Info("http: listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		slog.Info("rankwatch: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http: shutdown", "error", err)
		}
		svc.Stop()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "", "admin API listen address (overrides http.addr)")
	rootCmd.AddCommand(runCmd)
}
