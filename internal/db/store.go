package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alloy/dispatcher/internal/models"
)

// Store is the Postgres-backed JobStore.
type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dispatch_jobs (
	seq BIGSERIAL,
	job_id TEXT PRIMARY KEY,
	customer_name TEXT NOT NULL DEFAULT '',
	customer_contact_ref TEXT NOT NULL DEFAULT '',
	service_type TEXT NOT NULL DEFAULT '',
	estimated_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	scheduled_start TEXT NOT NULL DEFAULT '',
	scheduled_end TEXT NOT NULL DEFAULT '',
	access_method TEXT NOT NULL DEFAULT '',
	access_notes TEXT NOT NULL DEFAULT '',
	notified_contractor_refs TEXT[] NOT NULL DEFAULT '{}',
	notified_at JSONB NOT NULL DEFAULT '{}'::jsonb,
	assigned_contractor_ref TEXT,
	assigned_contractor_name TEXT,
	assigned_at TIMESTAMPTZ,
	dispatched_at TIMESTAMPTZ NOT NULL
)`

const seqIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS dispatch_jobs_seq_idx ON dispatch_jobs (seq)`

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, seqIndexSQL)
		return err
	})
}

const jobColumns = `job_id, customer_name, customer_contact_ref, service_type, estimated_price,
	scheduled_start, scheduled_end, access_method, access_notes,
	notified_contractor_refs, notified_at, assigned_contractor_ref, assigned_contractor_name,
	assigned_at, dispatched_at`

func (s *Store) Put(ctx context.Context, job models.Job) (models.Job, error) {
	if job.JobID == "" {
		return models.Job{}, ErrMissingJobID
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO dispatch_jobs (job_id, customer_name, customer_contact_ref, service_type, estimated_price,
			scheduled_start, scheduled_end, access_method, access_notes, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_contact_ref = EXCLUDED.customer_contact_ref,
			service_type = EXCLUDED.service_type,
			estimated_price = EXCLUDED.estimated_price,
			scheduled_start = EXCLUDED.scheduled_start,
			scheduled_end = EXCLUDED.scheduled_end,
			access_method = EXCLUDED.access_method,
			access_notes = EXCLUDED.access_notes,
			dispatched_at = EXCLUDED.dispatched_at
		RETURNING `+jobColumns,
		job.JobID, job.CustomerName, job.CustomerContactRef, job.ServiceType, job.EstimatedPrice,
		job.ScheduledStart, job.ScheduledEnd, job.AccessMethod, job.AccessNotes, job.DispatchedAt.UTC(),
	)
	stored, err := scanJob(row)
	if err != nil {
		return models.Job{}, fmt.Errorf("put job %s: %w", job.JobID, err)
	}
	return stored, nil
}

func (s *Store) Get(ctx context.Context, jobID string) (models.Job, bool, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM dispatch_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, true, nil
}

func (s *Store) All(ctx context.Context) ([]models.Job, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+jobColumns+` FROM dispatch_jobs ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Store) AddNotified(ctx context.Context, jobID, contractorRef string, at time.Time) (models.Job, error) {
	_, err := s.Pool.Exec(ctx, `
		UPDATE dispatch_jobs
		SET notified_contractor_refs = CASE
		        WHEN $2::text = ANY(notified_contractor_refs) THEN notified_contractor_refs
		        ELSE array_append(notified_contractor_refs, $2::text)
		    END,
		    notified_at = notified_at || jsonb_build_object($2::text, $3::timestamptz)
		WHERE job_id = $1`,
		jobID, contractorRef, at.UTC())
	if err != nil {
		return models.Job{}, fmt.Errorf("add notified %s to job %s: %w", contractorRef, jobID, err)
	}
	job, found, err := s.Get(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if !found {
		return models.Job{}, ErrJobNotFound
	}
	return job, nil
}

// MarkAssigned relies on the conditional UPDATE: only one statement can match
// a row whose assigned_contractor_ref is still NULL.
func (s *Store) MarkAssigned(ctx context.Context, jobID, contractorRef, contractorName string, at time.Time) (models.Job, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE dispatch_jobs
		SET assigned_contractor_ref = $2,
		    assigned_contractor_name = $3,
		    assigned_at = $4
		WHERE job_id = $1 AND assigned_contractor_ref IS NULL
		RETURNING `+jobColumns,
		jobID, contractorRef, contractorName, at.UTC())
	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, fmt.Errorf("mark job %s assigned: %w", jobID, err)
	}

	current, found, err := s.Get(ctx, jobID)
	if err != nil {
		return models.Job{}, false, err
	}
	if !found {
		return models.Job{}, false, ErrJobNotFound
	}
	return current, false, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		job        models.Job
		notifiedAt map[string]time.Time
	)
	if err := row.Scan(
		&job.JobID, &job.CustomerName, &job.CustomerContactRef, &job.ServiceType, &job.EstimatedPrice,
		&job.ScheduledStart, &job.ScheduledEnd, &job.AccessMethod, &job.AccessNotes,
		&job.NotifiedContractorRefs, &notifiedAt, &job.AssignedContractorRef, &job.AssignedContractorName,
		&job.AssignedAt, &job.DispatchedAt,
	); err != nil {
		return models.Job{}, err
	}
	if len(notifiedAt) > 0 {
		job.NotifiedAt = notifiedAt
	}
	return job.Clone(), nil
}
