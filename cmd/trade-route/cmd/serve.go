package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/trade-route/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console API for a browser front end",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address override, e.g. :8080")
}

func runServe(cmd *cobra.Command, args []string) error {
	const op = "cmd.runServe"

	serverCfg, err := server.NewConfig(conf.Console)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		serverCfg.Address = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := newCoordinator()
	if err := coord.RefreshVocabulary(ctx); err != nil {
		logger.Warn("starting with an empty vocabulary",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	srv := &http.Server{
		Addr:         serverCfg.Address,
		Handler:      server.NewHandler(coord, serverCfg, logger, Version),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: conf.Service.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console listening",
			zap.String("op", op),
			zap.String("address", serverCfg.Address),
			zap.String("service", conf.Service.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down console", zap.String("op", op))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
