// Command baselayer-migrate is the migration manager. It applies pending
// on-disk migrations at startup, exiting non-zero on failure so the
// supervisor restarts it, then serves the migration status plane the API
// processes gate on.
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

	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/migrate"
	"github.com/platinummonkey/baselayer/pkg/observability"
	"github.com/platinummonkey/baselayer/pkg/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	migrationsDir := flag.String("migrations", "migrations", "migrations directory")
	flag.Parse()

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout).Named("migration_manager")

	if err := run(logger, *configPath, *migrationsDir); err != nil {
		logger.WithError(err).Error("migration manager exited")
		os.Exit(1)
	}
}

func run(logger *observability.Logger, configPath, migrationsDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultsFile, configPath)
	if err != nil {
		return err
	}

	migrations, err := migrate.LoadDir(migrationsDir)
	if err != nil {
		return err
	}

	db, err := session.OpenDB(ctx, session.DBConfigFromConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := migrate.NewRunner(db, logger)
	if err := runner.Apply(ctx, migrations); err != nil {
		return err
	}

	metrics := observability.NewMetrics(nil)
	status := migrate.NewStatus(runner, migrations, logger)

	addr := fmt.Sprintf(":%d", cfg.Int("ports.migration_manager", 8100))
	httpServer := &http.Server{Addr: addr, Handler: status.Handler(metrics)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("migration manager listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
