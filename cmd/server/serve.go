package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/beliefgraph/internal/api"
	"github.com/Harshitk-cp/beliefgraph/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serveLongDesc string = `Run the HTTP API over the knowledge gateway.

The store is chosen by STORE_DRIVER (or --store); seed constants are
asserted on every start.`

func newServeCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootCommander) error {
	env, err := root.open(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	app := api.NewApp(env.store, env.gateway, env.recorder, api.DataVersions{
		Vocabulary: env.vocab.Version(),
		Units:      env.units.Version(),
		Constants:  env.seeds.Version,
	}, logger)

	// Start background services
	app.Janitor.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			app.Janitor.Stop()
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}
	logger.Info("shutting down server")

	// Stop background services
	app.Janitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
