package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = apperrors.NotFound("job not found")
	// ErrStatusConflict is returned when a guarded status write finds a different prior status.
	ErrStatusConflict = apperrors.Conflict("job status changed concurrently")
	// ErrCountingStarted is returned when a non-forced re-plan arrives after units were counted.
	ErrCountingStarted = apperrors.Conflict("job counters already in use")
	// ErrVersionConflict is returned when runtime data was updated by someone else.
	ErrVersionConflict = apperrors.Conflict("job version changed concurrently")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides the Postgres-backed progress store.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  owner_id,
  status,
  total,
  successful,
  failed,
  config,
  reason,
  runtime_data,
  version,
  created_at,
  started_at,
  finished_at,
  updated_at
`

// validJobID rejects ids Postgres would refuse as uuid so callers get NotFound, not a cast error.
func validJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	config, runtimeData   []byte
	reason                sql.NullString
	startedAt, finishedAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner rowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Status,
		&job.Total,
		&job.Successful,
		&job.Failed,
		&d.config,
		&d.reason,
		&d.runtimeData,
		&job.Version,
		&job.CreatedAt,
		&d.startedAt,
		&d.finishedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) error {
	if len(d.config) > 0 {
		if err := json.Unmarshal(d.config, &job.Config); err != nil {
			return fmt.Errorf("decode job config: %w", err)
		}
	}
	job.RuntimeData = cloneJSON(d.runtimeData)
	job.Reason = cloneNullableString(d.reason)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.FinishedAt = cloneNullableTime(d.finishedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

func scanJob(scanner rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

// collectJob collects a single job from pgx rows.
func collectJob(rows pgx.Rows) (*model.Job, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	return job, rows.Err()
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
