// Package serve provides the serve command which runs the HTTP API
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/clinreview/clinreview/internal/api"
	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/observability"
	"github.com/clinreview/clinreview/internal/review"
)

const shutdownTimeout = 10 * time.Second

// Command creates and returns the serve command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review API server",
		Long:  `Serve command starts the HTTP API for managing review tasks, samples and physician feedback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Port for the HTTP API")

	return cmd
}

func runServer(ctx context.Context, settings *conf.Settings) error {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ds := datastore.New(settings, metrics.Datastore)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			slog.Error("failed to close datastore", "error", err)
		}
	}()

	svc := review.NewService(ds, &settings.Review, nil, metrics.Review)

	e := echo.New()
	e.HideBanner = true
	if settings.WebServer.Debug {
		e.Use(middleware.Logger())
	}

	controller := api.New(e, ds, settings, svc, metrics)
	defer controller.Shutdown()

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		slog.Info("starting review API server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutting down", "reason", "context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
