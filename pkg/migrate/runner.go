package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/baselayer/pkg/observability"
)

// Runner applies pending migrations and reports the schema's current version
type Runner struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewRunner creates a migration runner
func NewRunner(db *sql.DB, logger *observability.Logger) *Runner {
	return &Runner{db: db, logger: logger}
}

func (r *Runner) ensureTrackingTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// CurrentVersion reports the highest applied migration version, 0 when
// nothing has been applied
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureTrackingTable(ctx); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Apply runs every pending migration in version order. Each migration runs
// in its own transaction together with its tracking row.
func (r *Runner) Apply(ctx context.Context, migrations []Migration) error {
	if len(migrations) == 0 {
		r.logger.Info("no migrations to apply")
		return nil
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		r.logger.Infof("applying migration %04d_%s", m.Version, m.Name)

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %04d_%s failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %04d_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}
