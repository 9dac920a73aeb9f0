package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/app"
	"github.com/kapu/outreach-pipeline-go/internal/config"
	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Outreach pipeline starting...",
		zap.String("addr", cfg.Server.Addr),
		zap.String("log_level", cfg.Logging.Level),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		os.Exit(1)
	}
	defer container.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           container.Router,
		ReadHeaderTimeout: constants.ServerConfig.ReadHeaderTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ServerConfig.ShutdownTimeout)
	defer shutdownCancel()

	// SSE streams stay open until their job ends, so Shutdown may time out.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		container.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Background jobs finished")
	case <-shutdownCtx.Done():
		logger.Warn("Background jobs still running at shutdown")
	}

	logger.Info("Shutdown complete")
}
