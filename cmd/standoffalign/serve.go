package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/standoffalign/internal/api"
	"github.com/dgallion1/standoffalign/internal/pipeline"
	"github.com/dgallion1/standoffalign/internal/streams"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the alignment HTTP API over preloaded block stores",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServe(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}
	comp, err := streams.ParseCompression(cfg.Compression)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	src, tgt, err := loadStores(ctx, streams.NewLoader(cfg.MaxLineBytes, logger),
		streams.PathsIn(cfg.SourceDir, comp), streams.PathsIn(cfg.TargetDir, comp))
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(cfg, src, tgt, logger)
	orch.Start(ctx)

	srv := api.NewServer(orch, logger, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		logger.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting standoffalign",
		"port", cfg.Port,
		"source_documents", src.Len(),
		"target_documents", tgt.Len(),
		"continuation", cfg.Policy().String(),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}
