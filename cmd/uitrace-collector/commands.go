package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/uitrace/pkg/uitrace/collector"
	"github.com/randalmurphal/uitrace/pkg/uitrace/transport"
)

const shutdownTimeout = 5 * time.Second

// newMux wires the beacon handler and, when enabled, the metrics endpoint.
func newMux(flags ServeFlags, sink collector.Sink, logger *slog.Logger) (*http.ServeMux, error) {
	reg := prometheus.NewRegistry()
	h, err := collector.New(collector.Config{
		Sink:         sink,
		MaxBodyBytes: flags.MaxBody,
		Registerer:   reg,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(flags.BeaconPath, h)
	if flags.MetricsPath != "" {
		mux.Handle(flags.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux, nil
}

func runServe(ctx context.Context, flags ServeFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(out, nil))

	store, err := transport.NewSQLite(flags.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	mux, err := newMux(flags, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              flags.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening",
			slog.String("addr", flags.Addr),
			slog.String("path", flags.BeaconPath),
			slog.String("db", flags.DBPath),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("collector shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runList(ctx context.Context, flags ListFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(flags.DBPath); err != nil {
		return fmt.Errorf("open %s: %w", flags.DBPath, err)
	}

	store, err := transport.NewSQLite(flags.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	batches, err := store.List(ctx, flags.Limit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		_, err := fmt.Fprintln(out, "no batches stored")
		return err
	}
	for _, b := range batches {
		if _, err := fmt.Fprintf(out, "#%d  %s  %-34s %d events  %d bytes\n",
			b.ID, b.SentAt.Format(time.RFC3339), b.ContentType, b.Events, len(b.Payload)); err != nil {
			return err
		}
		if flags.Events {
			if _, err := fmt.Fprintf(out, "    %s\n", b.Payload); err != nil {
				return err
			}
		}
	}
	return nil
}
