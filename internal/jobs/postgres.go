package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/analyze"
)

// Schema creates the job table. Migrate applies it.
const Schema = `CREATE TABLE IF NOT EXISTS sla_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	window_days  INTEGER NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	window_end   TIMESTAMPTZ NOT NULL,
	data         JSONB,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS sla_jobs_started_at_idx ON sla_jobs (started_at DESC);`

const uniqueViolation = "23505"

const jobColumns = `id, status, started_at, finished_at, window_days, window_start, window_end, data, error`

// DBClient interface for database operations
type DBClient interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PostgresStore struct {
	db     DBClient
	logger *zap.Logger
}

func NewPostgresStore(db DBClient, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgres opens a pooled connection and verifies it.
func OpenPostgres(ctx context.Context, dsn string, maxConnections int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConnections > 0 {
		db.SetMaxOpenConns(maxConnections)
		db.SetMaxIdleConns(maxConnections)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate sla_jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job Job) error {
	query := `INSERT INTO sla_jobs (id, status, started_at, window_days, window_start, window_end)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		string(job.Status),
		job.StartedAt.UTC(),
		job.WindowDays,
		job.Window.Start.UTC(),
		job.Window.End.UTC(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	if err != nil {
		s.logger.Error("failed to create job", zap.String("job_id", job.ID), zap.Error(err))
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Finalize only touches rows still processing, so a second call affects
// nothing and is reported as ErrAlreadyFinalized.
func (s *PostgresStore) Finalize(ctx context.Context, id string, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}
	data, err := nullJSON(outcome.Data)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", id, err)
	}

	query := `UPDATE sla_jobs SET status = $2, finished_at = $3, data = $4, error = $5
	WHERE id = $1 AND status = 'processing'`

	res, err := s.db.ExecContext(ctx, query,
		id,
		string(outcome.Status),
		outcome.FinishedAt.UTC(),
		data,
		sqlNullString(outcome.Error),
	)
	if err != nil {
		s.logger.Error("failed to finalize job", zap.String("job_id", id), zap.Error(err))
		return fmt.Errorf("update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM sla_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, id, status)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sla_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM sla_jobs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job      Job
		status   string
		finished sql.NullTime
		data     []byte
		errText  sql.NullString
	)
	err := row.Scan(&job.ID, &status, &job.StartedAt, &finished, &job.WindowDays,
		&job.Window.Start, &job.Window.End, &data, &errText)
	if err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	job.StartedAt = job.StartedAt.UTC()
	job.Window = analyze.Window{Start: job.Window.Start.UTC(), End: job.Window.End.UTC()}
	if finished.Valid {
		at := finished.Time.UTC()
		job.FinishedAt = &at
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &job.Data); err != nil {
			return Job{}, fmt.Errorf("decode data of %s: %w", job.ID, err)
		}
	}
	job.Error = errText.String
	return job, nil
}

func nullJSON(data []analyze.ProjectResult) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
