// Package archive persists completed experiments to PostgreSQL or SQLite.
// The full snapshot is stored as JSON next to queryable summary columns.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal/errors"
	"gosplit/ports"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 100

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store implements ports.ExperimentArchive on sqlx
type Store struct {
	db    *sqlx.DB
	clock core.Clock
}

var _ ports.ExperimentArchive = (*Store)(nil)

// Open connects to the database. Migrations are run separately.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported archive driver %q", driver))
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to archive database", err)
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db, clock: core.SystemClock{}}
}

// WithClock sets the clock that stamps archived_at
func (s *Store) WithClock(clock core.Clock) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// DB exposes the connection for migrations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// experimentRow mirrors the experiments table
type experimentRow struct {
	ID                 string        `db:"id"`
	Name               string        `db:"name"`
	Status             string        `db:"status"`
	TemplateID         string        `db:"template_id"`
	Family             string        `db:"family"`
	Metric             string        `db:"metric"`
	VariantCount       int           `db:"variant_count"`
	SampleCount        int           `db:"sample_count"`
	RequiredSampleSize int           `db:"required_sample_size"`
	SuccessRate        float64       `db:"success_rate"`
	Significant        bool          `db:"significant"`
	WinningVariant     string        `db:"winning_variant"`
	StopReason         string        `db:"stop_reason"`
	CreatedAt          int64         `db:"created_at"`
	StartedAt          sql.NullInt64 `db:"started_at"`
	EndedAt            sql.NullInt64 `db:"ended_at"`
	ArchivedAt         int64         `db:"archived_at"`
	Snapshot           string        `db:"snapshot"`
}

func millis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func toRow(snap domain.Snapshot, archivedAt time.Time) (experimentRow, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return experimentRow{}, fmt.Errorf("encode snapshot: %w", err)
	}
	row := experimentRow{
		ID:                 snap.ID.String(),
		Name:               snap.Name,
		Status:             string(snap.Status),
		TemplateID:         snap.TemplateID,
		Family:             string(snap.Config.Family),
		Metric:             snap.Config.Metric,
		VariantCount:       len(snap.Variants),
		SampleCount:        len(snap.Samples),
		RequiredSampleSize: snap.RequiredSampleSize,
		SuccessRate:        snap.SuccessRate(),
		StopReason:         snap.StopReason,
		CreatedAt:          snap.CreatedAt.UnixMilli(),
		StartedAt:          millis(snap.StartedAt),
		EndedAt:            millis(snap.EndedAt),
		ArchivedAt:         archivedAt.UnixMilli(),
		Snapshot:           string(payload),
	}
	if a := snap.FinalAnalysis; a != nil {
		row.Family = string(a.Comparison.Family)
		row.Significant = a.Comparison.Significant
		row.WinningVariant = a.WinningVariant.String()
	}
	return row, nil
}

func (r experimentRow) summary() domain.Summary {
	s := domain.Summary{
		ID:             core.ExperimentID(r.ID),
		Name:           r.Name,
		Status:         domain.Status(r.Status),
		Variants:       r.VariantCount,
		Samples:        r.SampleCount,
		SuccessRate:    r.SuccessRate,
		WinnerDecided:  r.Significant,
		WinningVariant: core.VariantID(r.WinningVariant),
	}
	if r.RequiredSampleSize > 0 {
		s.Progress = float64(r.SampleCount) / float64(r.RequiredSampleSize)
	}
	if r.StartedAt.Valid && r.EndedAt.Valid {
		s.Duration = time.Duration(r.EndedAt.Int64-r.StartedAt.Int64) * time.Millisecond
	}
	return s
}

// Save upserts a snapshot and its per-variant summaries in one transaction
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	row, err := toRow(snap, s.clock.Now())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("begin archive transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO experiments (id, name, status, template_id, family, metric, variant_count,
			sample_count, required_sample_size, success_rate, significant, winning_variant,
			stop_reason, created_at, started_at, ended_at, archived_at, snapshot)
		VALUES (:id, :name, :status, :template_id, :family, :metric, :variant_count,
			:sample_count, :required_sample_size, :success_rate, :significant, :winning_variant,
			:stop_reason, :created_at, :started_at, :ended_at, :archived_at, :snapshot)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			sample_count = excluded.sample_count,
			success_rate = excluded.success_rate,
			significant = excluded.significant,
			winning_variant = excluded.winning_variant,
			stop_reason = excluded.stop_reason,
			ended_at = excluded.ended_at,
			archived_at = excluded.archived_at,
			snapshot = excluded.snapshot
	`, row); err != nil {
		return errors.DatabaseError("failed to save experiment "+row.ID, err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM experiment_variants WHERE experiment_id = ?`), row.ID); err != nil {
		return errors.DatabaseError("failed to clear variant summaries", err)
	}
	if a := snap.FinalAnalysis; a != nil {
		for _, v := range a.Variants {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO experiment_variants (experiment_id, variant_id, sample_size, successful_samples, success_rate, metric_mean)
				VALUES (?, ?, ?, ?, ?, ?)`),
				row.ID, v.VariantID.String(), v.SampleSize, v.SuccessfulSamples, v.SuccessRate, v.Means[snap.Config.Metric]); err != nil {
				return errors.DatabaseError("failed to save variant summary", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("commit archive transaction", err)
	}
	return nil
}

// Get loads the full snapshot of an archived experiment
func (s *Store) Get(ctx context.Context, id core.ExperimentID) (domain.Snapshot, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, s.db.Rebind(`SELECT snapshot FROM experiments WHERE id = ?`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, core.NewNotFoundError(core.ErrExperimentNotFound, id.String())
	}
	if err != nil {
		return domain.Snapshot{}, errors.DatabaseError("failed to load experiment "+id.String(), err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns the most recently archived experiments first
func (s *Store) List(ctx context.Context, limit int) ([]domain.Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []experimentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, name, status, template_id, family, metric, variant_count, sample_count,
			required_sample_size, success_rate, significant, winning_variant, stop_reason,
			created_at, started_at, ended_at, archived_at, '' AS snapshot
		FROM experiments
		ORDER BY archived_at DESC, id
		LIMIT ?`), limit); err != nil {
		return nil, errors.DatabaseError("failed to list archived experiments", err)
	}

	out := make([]domain.Summary, len(rows))
	for i, r := range rows {
		out[i] = r.summary()
	}
	return out, nil
}

// VariantSummary is one stored per-variant row
type VariantSummary struct {
	VariantID         string  `db:"variant_id" json:"variant_id"`
	SampleSize        int     `db:"sample_size" json:"sample_size"`
	SuccessfulSamples int     `db:"successful_samples" json:"successful_samples"`
	SuccessRate       float64 `db:"success_rate" json:"success_rate"`
	MetricMean        float64 `db:"metric_mean" json:"metric_mean"`
}

// Variants returns the stored per-variant summaries of an experiment
func (s *Store) Variants(ctx context.Context, id core.ExperimentID) ([]VariantSummary, error) {
	var rows []VariantSummary
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT variant_id, sample_size, successful_samples, success_rate, metric_mean
		FROM experiment_variants WHERE experiment_id = ? ORDER BY variant_id`), id.String()); err != nil {
		return nil, errors.DatabaseError("failed to load variant summaries", err)
	}
	return rows, nil
}
