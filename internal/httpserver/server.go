// Package httpserver assembles the HTTP service: datastore, asset store and
// API controller behind one echo instance with graceful shutdown.
package httpserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	api "github.com/pqtoolkit/pqtoolkit-go/internal/api/v2"
	"github.com/pqtoolkit/pqtoolkit-go/internal/conf"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
	"github.com/pqtoolkit/pqtoolkit-go/internal/samplestore"
)

const shutdownTimeout = 10 * time.Second

// Run starts the HTTP service and blocks until the process receives an
// interrupt or termination signal.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("httpserver")

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("closing datastore", "error", err)
		}
	}()

	store, err := samplestore.New(settings.AssetRoot)
	if err != nil {
		return fmt.Errorf("opening sample store: %w", err)
	}
	defer func() { _ = store.Close() }()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	controller, err := api.New(e, ds, settings, store, log.Default())
	if err != nil {
		return fmt.Errorf("initializing API controller: %w", err)
	}
	defer controller.Shutdown()

	addr := fmt.Sprintf("%s:%s", settings.WebServer.Host, settings.WebServer.Port)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
