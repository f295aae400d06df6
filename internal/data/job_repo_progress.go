package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/data/pgxutil"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// A single UPDATE ... RETURNING both mutates and reports the counters, so the caller sees
// exactly the row its own increment produced; concurrent increments serialize on the row lock.
const incrementSQL = `
  UPDATE gather_jobs
  SET successful = successful + $2,
      failed = failed + $3,
      updated_at = $4
  WHERE id = $1
  RETURNING id, status, successful, failed, total`

// IncrementAndReturn atomically adds deltas to the job's counters.
func (r *JobRepo) IncrementAndReturn(
	ctx context.Context,
	jobID string,
	deltas model.ProgressDeltas,
) (model.ProgressSnapshot, error) {
	if err := deltas.Validate(); err != nil {
		return model.ProgressSnapshot{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid progress deltas")
	}
	if !validJobID(jobID) {
		return model.ProgressSnapshot{}, ErrJobNotFound
	}

	var snap model.ProgressSnapshot
	err := r.DB.QueryRowContext(ctx, incrementSQL,
		jobID, deltas.Successful, deltas.Failed, r.timeProvider.Now().UTC(),
	).Scan(&snap.ID, &snap.Status, &snap.Successful, &snap.Failed, &snap.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProgressSnapshot{}, ErrJobNotFound
	}
	if err != nil {
		return model.ProgressSnapshot{}, fmt.Errorf("increment job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return snap, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, ErrJobNotFound
	}
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM gather_jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		job, err = collectJob(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, apperrors.MapDBError(err))
	}
	return job, nil
}

// UpdateStatus performs a guarded status write: it only applies when the stored status still
// equals ExpectedStatus. Timestamps use COALESCE so a first-entry stamp is never overwritten.
// When Total is set, counters reset to zero; without AllowCounterReset the reset additionally
// requires that no unit has been counted yet.
func (r *JobRepo) UpdateStatus(ctx context.Context, p core.UpdateStatusParams) (*model.Job, error) {
	if !p.Status.Valid() || !p.ExpectedStatus.Valid() {
		return nil, apperrors.Validationf("invalid status transition %q -> %q", p.ExpectedStatus, p.Status)
	}
	if !validJobID(p.JobID) {
		return nil, ErrJobNotFound
	}
	if p.Total != nil && *p.Total < 0 {
		return nil, apperrors.ValidationField("total", "total must be >= 0")
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.timeProvider.Now()
	}

	query := `
  UPDATE gather_jobs
  SET status = $3,
      started_at = COALESCE(started_at, $4),
      finished_at = COALESCE(finished_at, $5),
      reason = COALESCE($6, reason),
      total = COALESCE($7::int, total),
      successful = CASE WHEN $7::int IS NULL THEN successful ELSE 0 END,
      failed = CASE WHEN $7::int IS NULL THEN failed ELSE 0 END,
      updated_at = $8
  WHERE id = $1
    AND status = $2
    AND ($7::int IS NULL OR $9::bool OR successful + failed = 0)
  RETURNING ` + jobColumns

	var total any
	if p.Total != nil {
		total = *p.Total
	}
	var reason any
	if p.Reason != nil {
		reason = strings.TrimSpace(*p.Reason)
	}

	row := r.DB.QueryRowContext(ctx, query,
		p.JobID,
		p.ExpectedStatus,
		p.Status,
		utcPtr(p.StartedAt),
		utcPtr(p.FinishedAt),
		reason,
		total,
		updatedAt.UTC(),
		p.AllowCounterReset,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update job %s status: %w", p.JobID, apperrors.MapDBError(err))
	}
	return nil, r.explainMissedUpdate(ctx, p)
}

// explainMissedUpdate tells apart a missing job, a lost status race and a refused re-plan.
func (r *JobRepo) explainMissedUpdate(ctx context.Context, p core.UpdateStatusParams) error {
	current, err := r.GetByID(ctx, p.JobID)
	if err != nil {
		return err
	}
	if current.Status != p.ExpectedStatus {
		return apperrors.Wrapf(ErrStatusConflict, apperrors.ErrCodeConflict,
			"job %s is %s, expected %s", p.JobID, current.Status, p.ExpectedStatus)
	}
	if p.Total != nil && !p.AllowCounterReset {
		return apperrors.Wrapf(ErrCountingStarted, apperrors.ErrCodeConflict,
			"job %s already counted %d units", p.JobID, current.Successful+current.Failed)
	}
	// The status flipped and flipped back between the two statements.
	return apperrors.Wrapf(ErrStatusConflict, apperrors.ErrCodeConflict, "job %s changed concurrently", p.JobID)
}
