// Package migration creates and upgrades the experiment archive schema.
// Statements are portable between PostgreSQL and SQLite.
package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gosplit/internal"
	"gosplit/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// Step is one schema version
type Step struct {
	Version    string
	Name       string
	Statements []string
}

// Checksum fingerprints the step's SQL so edited migrations are detectable
func (s Step) Checksum() string {
	sum := sha256.Sum256([]byte(strings.Join(s.Statements, ";\n")))
	return hex.EncodeToString(sum[:])
}

// Steps is the ordered schema history
var Steps = []Step{
	{
		Version: "0001",
		Name:    "create experiments",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			template_id TEXT NOT NULL DEFAULT '',
			family TEXT NOT NULL,
			metric TEXT NOT NULL,
			variant_count INTEGER NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			required_sample_size INTEGER NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			significant BOOLEAN NOT NULL DEFAULT FALSE,
			winning_variant TEXT NOT NULL DEFAULT '',
			stop_reason TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			started_at BIGINT,
			ended_at BIGINT,
			archived_at BIGINT NOT NULL,
			snapshot TEXT NOT NULL
		)`,
		},
	},
	{
		Version: "0002",
		Name:    "create variant summaries",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS experiment_variants (
			experiment_id TEXT NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			variant_id TEXT NOT NULL,
			sample_size INTEGER NOT NULL,
			successful_samples INTEGER NOT NULL,
			success_rate DOUBLE PRECISION NOT NULL,
			metric_mean DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (experiment_id, variant_id)
		)`,
		},
	},
	{
		Version: "0003",
		Name:    "create indexes",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status)`,
			`CREATE INDEX IF NOT EXISTS idx_experiments_archived_at ON experiments(archived_at)`,
		},
	},
}

// MigrationRunner applies pending steps, each in its own transaction
type MigrationRunner struct {
	steps  []Step
	logger *internal.Logger
}

// NewRunner creates a runner over Steps
func NewRunner(logger *internal.Logger) *MigrationRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &MigrationRunner{steps: Steps, logger: logger}
}

// Version returns the newest schema version
func (r *MigrationRunner) Version() string {
	return r.steps[len(r.steps)-1].Version
}

// Run executes all pending migrations in order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at BIGINT NOT NULL
		)`); err != nil {
		return errors.DatabaseError("failed to create schema_migrations table", err)
	}

	applied, err := r.applied(ctx, db)
	if err != nil {
		return errors.DatabaseError("failed to read applied migrations", err)
	}

	for _, step := range r.steps {
		if checksum, ok := applied[step.Version]; ok {
			if checksum != step.Checksum() {
				r.logger.Warn("Migration %s (%s) changed after it was applied", step.Version, step.Name)
			}
			continue
		}
		if err := r.apply(ctx, db, step); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s (%s)", step.Version, step.Name)
		}
		r.logger.Info("Applied migration %s: %s", step.Version, step.Name)
	}
	return nil
}

func (r *MigrationRunner) applied(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &rows, `SELECT version, checksum FROM schema_migrations`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Version] = row.Checksum
	}
	return out, nil
}

func (r *MigrationRunner) apply(ctx context.Context, db *sqlx.DB, step Step) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("begin transaction", err)
	}
	for _, stmt := range step.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return errors.DatabaseError("execute statement", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`),
		step.Version, step.Checksum(), time.Now().UnixMilli()); err != nil {
		_ = tx.Rollback()
		return errors.DatabaseError("record migration", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("commit migration", err)
	}
	return nil
}
