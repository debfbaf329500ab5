// Command baselayer-websocket runs the websocket fan-out server: SUB on
// the broker egress, websocket upgrades for browsers, token-authenticated
// subscriptions.
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

	"github.com/gorilla/mux"

	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/fanout"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	flag.Parse()

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout).Named("websocket_server")

	if err := run(logger, *configPath); err != nil {
		logger.WithError(err).Error("websocket server exited")
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
	secret := []byte(cfg.String("app.secret_key", ""))
	if len(secret) == 0 {
		return fmt.Errorf("app.secret_key is not configured")
	}

	metrics := observability.NewMetrics(nil)
	server, err := fanout.NewServer(ctx,
		cfg.String("ports.websocket_path_out", "tcp://127.0.0.1:9501"),
		secret, logger, metrics)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	router := mux.NewRouter()
	router.Path("/metrics").Handler(metrics.Handler())
	router.PathPrefix("/").HandlerFunc(server.HandleUpgrade)

	addr := fmt.Sprintf(":%d", cfg.Int("ports.websocket", 8300))
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("websocket server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errCh
}
