// Command baselayer-proxy runs the message broker: a PULL socket for
// handler ingress forwarded to a PUB socket for websocket-server egress.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/fanout"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

func main() {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout).Named("message_proxy")

	if err := run(logger); err != nil {
		logger.WithError(err).Error("message proxy exited")
		os.Exit(1)
	}
}

func run(logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(config.DefaultsFile, configPath)
	if err != nil {
		return err
	}

	proxy, err := fanout.NewProxy(ctx,
		cfg.String("ports.websocket_path_in", "tcp://127.0.0.1:9500"),
		cfg.String("ports.websocket_path_out", "tcp://127.0.0.1:9501"),
		logger)
	if err != nil {
		return err
	}
	return proxy.Run(ctx)
}
