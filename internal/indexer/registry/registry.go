// Package registry records index build runs in PostgreSQL: when a field build
// started, which buckets completed with which blocks, and how it ended. A
// Registry without a database records nothing, so builds run the same with
// or without bookkeeping.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Run statuses.
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Run is one field build.
type Run struct {
	RunID      string
	Field      string
	Status     string
	NumDocs    int
	NumTerms   int
	Blocks     int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Registry writes build bookkeeping. The zero value and a Registry created
// with a nil client are no-ops.
type Registry struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Registry {
	return &Registry{
		db:     db,
		logger: slog.Default().With("component", "build-registry"),
	}
}

func (r *Registry) enabled() bool {
	return r != nil && r.db != nil
}

// Migrate creates the registry tables if they do not exist.
func (r *Registry) Migrate(ctx context.Context) error {
	if !r.enabled() {
		return nil
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	return r.db.Migrate(ctx, sub)
}

// StartRun records a field build as running.
func (r *Registry) StartRun(ctx context.Context, runID, field string, numDocs int) error {
	if !r.enabled() {
		return nil
	}
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO build_runs (run_id, field, status, num_docs) VALUES ($1, $2, $3, $4)`,
		runID, field, StatusRunning, numDocs,
	)
	if err != nil {
		return fmt.Errorf("recording build start: %w", err)
	}
	return nil
}

// BucketDone records a written bucket. Retried buckets overwrite the row of
// the earlier attempt.
func (r *Registry) BucketDone(ctx context.Context, runID, field string, bucket, numTerms int, blocks []string, attempts int) error {
	if !r.enabled() {
		return nil
	}
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO build_buckets (run_id, field, bucket, num_terms, blocks, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, field, bucket)
		 DO UPDATE SET num_terms = EXCLUDED.num_terms, blocks = EXCLUDED.blocks,
		               attempts = EXCLUDED.attempts, completed_at = NOW()`,
		runID, field, bucket, numTerms, pq.Array(blocks), attempts,
	)
	if err != nil {
		return fmt.Errorf("recording bucket %d: %w", bucket, err)
	}
	return nil
}

// FinishRun records the outcome of a field build. A nil buildErr marks the
// run succeeded.
func (r *Registry) FinishRun(ctx context.Context, runID, field string, numTerms, blocks int, buildErr error) error {
	if !r.enabled() {
		return nil
	}
	status := StatusSucceeded
	var msg sql.NullString
	if buildErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: buildErr.Error(), Valid: true}
	}
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE build_runs
			 SET status = $3, num_terms = $4, blocks = $5, error = $6, finished_at = NOW()
			 WHERE run_id = $1 AND field = $2`,
			runID, field, status, numTerms, blocks, msg,
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: run %s/%s", apperrors.ErrNotFound, runID, field)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording build finish: %w", err)
	}
	r.logger.Info("build run recorded", "run_id", runID, "field", field, "status", status)
	return nil
}

// LatestRun returns the most recently started run of field.
func (r *Registry) LatestRun(ctx context.Context, field string) (*Run, error) {
	if !r.enabled() {
		return nil, fmt.Errorf("%w: registry disabled", apperrors.ErrNotFound)
	}
	var run Run
	var errMsg sql.NullString
	var finished sql.NullTime
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT run_id, field, status, num_docs, num_terms, blocks, error, started_at, finished_at
		 FROM build_runs WHERE field = $1 ORDER BY started_at DESC LIMIT 1`,
		field,
	).Scan(&run.RunID, &run.Field, &run.Status, &run.NumDocs, &run.NumTerms, &run.Blocks, &errMsg, &run.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no build runs for %s", apperrors.ErrNotFound, field)
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	run.Error = errMsg.String
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
