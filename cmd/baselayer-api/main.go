// Command baselayer-api runs one API handler process. It waits on the
// migration gate, then serves the authenticated JSON API on the internal
// base port plus its process offset.
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
	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/fanout"
	"github.com/platinummonkey/baselayer/pkg/migrate"
	"github.com/platinummonkey/baselayer/pkg/models"
	"github.com/platinummonkey/baselayer/pkg/notify"
	"github.com/platinummonkey/baselayer/pkg/observability"
	"github.com/platinummonkey/baselayer/pkg/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	process := flag.Int("process", 0, "process index; listens on app_internal + index")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := observability.InfoLevel
	if *debug {
		level = observability.DebugLevel
	}
	logger := observability.NewLogger(level, os.Stdout).Named("api").WithField("process", *process)

	if err := run(logger, *configPath, *process); err != nil {
		logger.WithError(err).Error("api process exited")
		os.Exit(1)
	}
}

func run(logger *observability.Logger, configPath string, process int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultsFile, configPath)
	if err != nil {
		return err
	}

	// The gate: no traffic until the schema is at head
	gateURL := fmt.Sprintf("http://127.0.0.1:%d/", cfg.Int("ports.migration_manager", 8100))
	if err := migrate.WaitForMigrations(ctx, gateURL, logger); err != nil {
		return err
	}

	db, err := session.OpenDB(ctx, session.DBConfigFromConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := models.BuildRegistry()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(nil)
	opts := []session.ManagerOption{
		session.WithStrict(cfg.Bool("security.strict", true)),
		session.WithMetrics(metrics),
	}
	if notifier := notify.FromConfig(cfg); notifier != nil {
		opts = append(opts, session.WithLeakNotifier(notifier))
	}
	mgr := session.NewManager(db, reg, logger, opts...)

	secret := []byte(cfg.String("app.secret_key", ""))
	if len(secret) == 0 {
		return fmt.Errorf("app.secret_key is not configured")
	}
	authenticator := auth.NewAuthenticator(mgr, auth.NewCookieCodec(secret))

	var publisher *fanout.Publisher
	if ingress := cfg.String("ports.websocket_path_in", ""); ingress != "" {
		publisher, err = fanout.NewPublisher(ctx, ingress, logger, metrics)
		if err != nil {
			// Fan-out is best-effort; the API still serves without it
			logger.WithError(err).Warn("message broker unavailable; fan-out disabled")
		} else {
			defer publisher.Close()
		}
	}

	server := api.NewServer(mgr, authenticator, publisher, secret, logger, metrics)
	addr := fmt.Sprintf(":%d", cfg.Int("ports.app_internal", 8200)+process)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("api listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
