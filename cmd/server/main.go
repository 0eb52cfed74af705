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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pangancache/internal/api"
	"pangancache/internal/config"
	"pangancache/internal/ingest"
	"pangancache/internal/scheduler"
	"pangancache/internal/store/sqlite"
	"pangancache/internal/upstream"
	"pangancache/internal/upstream/panelharga"
)

func main() {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the cached price feed and refresh it on a schedule",
		RunE:         run,
		SilenceUsage: true,
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "server failed:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.Logger()

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var client upstream.Client
	if cfg.UpstreamMock {
		client = panelharga.NewMock()
	} else {
		client = panelharga.NewWithConfig(panelharga.Config{
			BaseURL:     cfg.UpstreamBaseURL,
			Timeout:     cfg.UpstreamTimeout,
			MaxAttempts: cfg.UpstreamMaxAttempts,
		})
	}

	registry := prometheus.NewRegistry()
	runner := &instrumentedRunner{
		inner:   ingest.New(client, st, log),
		metrics: newMetrics(registry),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(ctx, runner, scheduler.Config{
		Interval: cfg.IngestInterval,
		LevelID:  cfg.IngestLevelID,
	}, log)

	router := api.New(st, runner, log).Router()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
