// Package recorder keeps a SQL ledger of training runs: one row per run,
// its saved checkpoints and the scores reported after each stage.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		hyperparams_key TEXT NOT NULL,
		host_cpu TEXT NOT NULL,
		host_cores INTEGER NOT NULL,
		host_features TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL REFERENCES runs(id),
		stage TEXT NOT NULL,
		kind TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		path TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		run_id TEXT NOT NULL REFERENCES runs(id),
		stage TEXT NOT NULL,
		split TEXT NOT NULL,
		loss DOUBLE PRECISION,
		rmse DOUBLE PRECISION,
		real_rmse DOUBLE PRECISION,
		samples INTEGER NOT NULL,
		PRIMARY KEY (run_id, stage, split)
	)`,
}

// Run is one row of the runs table.
type Run struct {
	ID           string         `db:"id"`
	Key          string         `db:"hyperparams_key"`
	HostCPU      string         `db:"host_cpu"`
	HostCores    int            `db:"host_cores"`
	HostFeatures string         `db:"host_features"`
	Status       string         `db:"status"`
	Error        string         `db:"error"`
	StartedAt    string         `db:"started_at"`
	FinishedAt   sql.NullString `db:"finished_at"`
}

// ScoreRow is one evaluation of one split. NaN metrics are stored as NULL.
type ScoreRow struct {
	RunID    string          `db:"run_id"`
	Stage    string          `db:"stage"`
	Split    string          `db:"split"`
	Loss     sql.NullFloat64 `db:"loss"`
	RMSE     sql.NullFloat64 `db:"rmse"`
	RealRMSE sql.NullFloat64 `db:"real_rmse"`
	Samples  int             `db:"samples"`
}

// CheckpointRow records one weight file written during a run.
type CheckpointRow struct {
	RunID   string `db:"run_id"`
	Stage   string `db:"stage"`
	Kind    string `db:"kind"`
	Epoch   int    `db:"epoch"`
	Path    string `db:"path"`
	SavedAt string `db:"saved_at"`
}

// Recorder writes the run ledger.
type Recorder struct {
	db *sqlx.DB
}

// Open connects to driver ("sqlite" or "postgres") and creates the tables.
func Open(ctx context.Context, driver, dsn string) (*Recorder, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported recorder driver %q", driver)
	}

	if driver == "sqlite" && !strings.Contains(dsn, "foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	r := &Recorder{db: db}
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("Run recorder initialized: %s", driver)
	return r, nil
}

// Migrate creates missing tables.
func (r *Recorder) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (r *Recorder) Close() error { return r.db.Close() }

// StartRun inserts a running row for key and returns it.
func (r *Recorder) StartRun(ctx context.Context, key string, host Host) (*Run, error) {
	run := &Run{
		ID:           uuid.NewString(),
		Key:          key,
		HostCPU:      host.CPU,
		HostCores:    host.LogicalCores,
		HostFeatures: host.FeatureList(),
		Status:       StatusRunning,
		StartedAt:    now(),
	}
	const query = `
		INSERT INTO runs (id, hyperparams_key, host_cpu, host_cores, host_features, status, started_at)
		VALUES (:id, :hyperparams_key, :host_cpu, :host_cores, :host_features, :status, :started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run with status and, for failures, the error text.
func (r *Recorder) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	query := r.db.Rebind(`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, status, msg, now(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordCheckpoint notes a weight file saved during a run.
func (r *Recorder) RecordCheckpoint(ctx context.Context, row CheckpointRow) error {
	if row.SavedAt == "" {
		row.SavedAt = now()
	}
	const query = `
		INSERT INTO checkpoints (run_id, stage, kind, epoch, path, saved_at)
		VALUES (:run_id, :stage, :kind, :epoch, :path, :saved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to record checkpoint: %w", err)
	}
	return nil
}

// RecordScore stores the evaluation of one split after a stage.
func (r *Recorder) RecordScore(ctx context.Context, runID, stage, split string, loss, rmse, realRMSE float64, samples int) error {
	row := ScoreRow{
		RunID:    runID,
		Stage:    stage,
		Split:    split,
		Loss:     nullable(loss),
		RMSE:     nullable(rmse),
		RealRMSE: nullable(realRMSE),
		Samples:  samples,
	}
	const query = `
		INSERT INTO scores (run_id, stage, split, loss, rmse, real_rmse, samples)
		VALUES (:run_id, :stage, :split, :loss, :rmse, :real_rmse, :samples)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}
	return nil
}

// Runs lists every run, oldest first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := r.db.SelectContext(ctx, &runs, `SELECT * FROM runs ORDER BY started_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Scores lists the scores of one run.
func (r *Recorder) Scores(ctx context.Context, runID string) ([]ScoreRow, error) {
	var rows []ScoreRow
	query := r.db.Rebind(`SELECT * FROM scores WHERE run_id = ? ORDER BY stage DESC, split DESC`)
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	return rows, nil
}

// Checkpoints lists the weight files saved during one run, in save order.
func (r *Recorder) Checkpoints(ctx context.Context, runID string) ([]CheckpointRow, error) {
	var rows []CheckpointRow
	query := r.db.Rebind(`SELECT * FROM checkpoints WHERE run_id = ? ORDER BY saved_at, epoch`)
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return rows, nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string { return time.Now().UTC().Format(timeLayout) }
