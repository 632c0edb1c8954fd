package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	serveCmdName      = "serve"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   serveCmdName,
		Short: "Serves harvest results over a read-only HTTP API.",
		Long: `serve exposes the stored snapshot, change log, pipeline log, reports
and review queue as JSON, plus /healthz, /readyz and /metrics. It never
harvests; run campharvest on a schedule alongside it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd)
			if addr == "" {
				addr = viper.GetString("server.addr")
			}
			return runServeCommand(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

// runServeCommand serves until ctx is canceled, then drains in-flight
// requests.
func runServeCommand(ctx context.Context, addr string) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	handler, err := appInstance.StatusHandler()
	if err != nil {
		return fmt.Errorf("build status api: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down status API")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
