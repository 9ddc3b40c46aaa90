package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

type IngestionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIngestionRepository(db *sql.DB) *IngestionRepository {
	return &IngestionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *IngestionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingestion_runs_created_at ON ingestion_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *IngestionRepository) Create(ctx context.Context, run *domain.IngestionRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_runs (id, source, status, chunk_count, error_message, created_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		run.ID, run.Source, string(run.Status), run.Count, run.Error, run.CreatedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion run: %w", err)
	}
	return nil
}

func (r *IngestionRepository) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, source, status, chunk_count, error_message, created_at, finished_at
FROM ingestion_runs
WHERE id = $1
`, id)

	var run domain.IngestionRun
	var status string
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.Source, &status, &run.Count, &run.Error, &run.CreatedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get ingestion run", fmt.Errorf("ingestion run not found: %s", id))
		}
		return nil, fmt.Errorf("scan ingestion run: %w", err)
	}
	run.Status = domain.IngestionStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (r *IngestionRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.IngestionStatus,
	count int,
	errMessage string,
) error {
	var finished sql.NullTime
	if status == domain.IngestionSucceeded || status == domain.IngestionFailed {
		finished = sql.NullTime{Time: r.now(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE ingestion_runs
SET status = $2, chunk_count = $3, error_message = $4, finished_at = $5
WHERE id = $1
`, id, string(status), count, errMessage, finished)
	if err != nil {
		return fmt.Errorf("update ingestion run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ingestion run rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update ingestion run", fmt.Errorf("ingestion run not found: %s", id))
	}
	return nil
}
