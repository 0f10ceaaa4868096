// Package store implements the pipeline's storage port on PostgreSQL.
//
// Each entity batch is written with the COPY protocol inside its own
// transaction, so a failing batch leaves no partial rows behind. Run history,
// quality counters and rejected records are kept in the etl_* tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// Postgres is the PostgreSQL destination store.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ core.Store       = (*Postgres)(nil)
	_ core.RunRecorder = (*Postgres)(nil)
)

// Connect opens and verifies a connection pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, classify(fmt.Errorf("connect: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify(fmt.Errorf("ping: %w", err))
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		logging.FromContext(ctx).Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the destination and bookkeeping tables if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin migration: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schema.DDL {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("migrate: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit migration: %w", err))
	}
	return nil
}

// Reset empties the four destination tables.
func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema.ResetSQL); err != nil {
		return classify(fmt.Errorf("reset tables: %w", err))
	}
	return nil
}

// LoadBatch copies all rows of b in one transaction.
func (p *Postgres) LoadBatch(ctx context.Context, b core.Batch) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, classify(fmt.Errorf("begin %s batch: %w", b.Table.Name, err))
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{b.Table.Name}, b.Table.Columns, pgx.CopyFromRows(b.Rows))
	if err != nil {
		return 0, classify(fmt.Errorf("copy into %s: %w", b.Table.Name, err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(fmt.Errorf("commit %s batch: %w", b.Table.Name, err))
	}

	logging.FromContext(ctx).Debug("batch committed", "table", b.Table.Name, "rows", n)
	return n, nil
}

// RecordRun stores the run, its counters and its rejections.
func (p *Postgres) RecordRun(ctx context.Context, report *core.Report, rejections []core.Rejection) error {
	runID, err := parseUUID(report.RunID)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin run record: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO etl_runs (run_id, state, error, report, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, report.State.String(), core.ToPgText(report.Error), report.Render(), report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert run: %w", err))
	}

	counterRows := make([][]any, 0, len(report.Sources))
	for _, c := range report.Sources {
		counterRows = append(counterRows, []any{
			runID, c.Source, c.Processed, c.DuplicatesRemoved, c.MissingHandled, c.Loaded,
			c.DroppedMissing, c.DroppedIntegrity, c.DroppedMalformed, c.DroppedStorage,
			c.FieldsMalformed, c.CategoriesUnrecognized,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"etl_quality_counters"}, counterColumns, pgx.CopyFromRows(counterRows)); err != nil {
		return classify(fmt.Errorf("copy quality counters: %w", err))
	}

	rejectionRows := make([][]any, 0, len(rejections))
	for _, r := range rejections {
		rejectionRows = append(rejectionRows, []any{
			runID, r.Source, r.Line, core.ToPgText(r.Key), r.Kind.String(), string(r.Reason), core.ToPgText(r.Detail), r.Raw,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"etl_rejections"}, rejectionColumns, pgx.CopyFromRows(rejectionRows)); err != nil {
		return classify(fmt.Errorf("copy rejections: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit run record: %w", err))
	}
	return nil
}

var (
	counterColumns = []string{
		"run_id", "source", "processed", "duplicates_removed", "missing_handled", "loaded",
		"dropped_missing", "dropped_integrity", "dropped_malformed", "dropped_storage",
		"fields_malformed", "categories_unrecognized",
	}
	rejectionColumns = []string{
		"run_id", "source", "line_number", "natural_key", "kind", "reason", "detail", "raw_data",
	}
)

// RunSummary is one row of run history.
type RunSummary struct {
	RunID      string                 `json:"run_id"`
	State      string                 `json:"state"`
	Error      string                 `json:"error,omitempty"`
	Report     string                 `json:"-"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Counters   []core.QualityCounters `json:"counters"`
}

// ErrNoRuns is returned by LatestRun when no run was recorded yet.
var ErrNoRuns = errors.New("no pipeline runs recorded")

// ListRuns returns the most recent runs, newest first.
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.pool.Query(ctx, `
		SELECT run_id, state, error, report, started_at, finished_at
		FROM etl_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list runs: %w", err))
	}

	var (
		runs  []RunSummary
		ids   []pgtype.UUID
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			id      pgtype.UUID
			summary RunSummary
			errText pgtype.Text
		)
		if err := rows.Scan(&id, &summary.State, &errText, &summary.Report, &summary.StartedAt, &summary.FinishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summary.RunID = uuidString(id)
		summary.Error = errText.String
		index[summary.RunID] = len(runs)
		runs = append(runs, summary)
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list runs: %w", err))
	}
	if len(runs) == 0 {
		return nil, nil
	}

	crows, err := p.pool.Query(ctx, `
		SELECT run_id, source, processed, duplicates_removed, missing_handled, loaded,
		       dropped_missing, dropped_integrity, dropped_malformed, dropped_storage,
		       fields_malformed, categories_unrecognized
		FROM etl_quality_counters
		WHERE run_id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(fmt.Errorf("list counters: %w", err))
	}
	defer crows.Close()

	for crows.Next() {
		var (
			id pgtype.UUID
			c  core.QualityCounters
		)
		if err := crows.Scan(&id, &c.Source, &c.Processed, &c.DuplicatesRemoved, &c.MissingHandled, &c.Loaded,
			&c.DroppedMissing, &c.DroppedIntegrity, &c.DroppedMalformed, &c.DroppedStorage,
			&c.FieldsMalformed, &c.CategoriesUnrecognized); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		if src, ok := schema.SourceByKey(c.Source); ok {
			c.File = src.FileName
		}
		i := index[uuidString(id)]
		runs[i].Counters = append(runs[i].Counters, c)
	}
	if err := crows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list counters: %w", err))
	}

	return runs, nil
}

// LatestRun returns the most recent run.
func (p *Postgres) LatestRun(ctx context.Context) (RunSummary, error) {
	runs, err := p.ListRuns(ctx, 1)
	if err != nil {
		return RunSummary{}, err
	}
	if len(runs) == 0 {
		return RunSummary{}, ErrNoRuns
	}
	return runs[0], nil
}

// Rejections returns the rejected records of a run in input order.
func (p *Postgres) Rejections(ctx context.Context, runID string) ([]core.Rejection, error) {
	id, err := parseUUID(runID)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT source, line_number, natural_key, kind, reason, detail, raw_data
		FROM etl_rejections
		WHERE run_id = $1
		ORDER BY source, line_number, id`, id)
	if err != nil {
		return nil, classify(fmt.Errorf("list rejections: %w", err))
	}
	defer rows.Close()

	var out []core.Rejection
	for rows.Next() {
		var (
			r            core.Rejection
			key, detail  pgtype.Text
			kind, reason string
		)
		if err := rows.Scan(&r.Source, &r.Line, &key, &kind, &reason, &detail, &r.Raw); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.Key = key.String
		r.Detail = detail.String
		r.Reason = core.Reason(reason)
		r.Kind = r.Reason.Kind()
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

func parseUUID(s string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
