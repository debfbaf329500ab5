// Command baselayer-status serves the provisioning status plane: 503 on
// every route, JSON for API paths, HTML elsewhere. The front proxy routes
// here until the API processes come up.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/baselayer/pkg/api"
	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	flag.Parse()

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout).Named("status_server")

	if err := run(logger, *configPath); err != nil {
		logger.WithError(err).Error("status server exited")
		os.Exit(1)
	}
}

func run(logger *observability.Logger, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultsFile, configPath)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Int("ports.status", 8400))
	httpServer := &http.Server{Addr: addr, Handler: api.StatusPlaneHandler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("status server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
