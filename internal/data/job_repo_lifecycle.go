package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/data/pgxutil"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

const defaultListLimit = 100

// Create inserts a job in waiting with zeroed counters.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid create job request")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	total := model.UnknownTotal
	if req.Total != nil {
		total = *req.Total
	}
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("encode job config: %w", err)
	}
	now := r.timeProvider.Now().UTC()

	var job *model.Job
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qErr := tx.Query(ctx, `
        INSERT INTO gather_jobs (id, owner_id, status, total, successful, failed, config, created_at, updated_at)
        VALUES ($1, $2, 'waiting', $3, 0, 0, $4, $5, $5)
        RETURNING `+jobColumns, id, req.OwnerID, total, cfg, now)
			if qErr != nil {
				return qErr
			}
			var collectErr error
			job, collectErr = collectJob(rows)
			return collectErr
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// UpdateRuntimeData replaces the job's opaque runtime data if the version still matches,
// and bumps the version. Counters and status are untouched.
func (r *JobRepo) UpdateRuntimeData(ctx context.Context, p core.UpdateRuntimeDataParams) (*model.Job, error) {
	if !validJobID(p.JobID) {
		return nil, ErrJobNotFound
	}
	data := p.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return nil, apperrors.ValidationField("runtime_data", "runtime data must be valid JSON")
	}

	row := r.DB.QueryRowContext(ctx, `
    UPDATE gather_jobs
    SET runtime_data = $3, version = version + 1, updated_at = $4
    WHERE id = $1 AND version = $2
    RETURNING `+jobColumns, p.JobID, p.ExpectedVersion, []byte(data), r.timeProvider.Now().UTC())
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update runtime data: %w", apperrors.MapDBError(err))
	}

	current, getErr := r.GetByID(ctx, p.JobID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.Wrapf(ErrVersionConflict, apperrors.ErrCodeConflict,
		"job %s is at version %d, expected %d", p.JobID, current.Version, p.ExpectedVersion)
}

// ListOpen returns waiting and processing jobs ordered by id for keyset pagination.
func (r *JobRepo) ListOpen(ctx context.Context, p core.ListOpenParams) ([]*model.Job, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var updatedBefore any
	if !p.UpdatedBefore.IsZero() {
		updatedBefore = p.UpdatedBefore.UTC()
	}
	var afterID any
	if p.AfterID != "" {
		if !validJobID(p.AfterID) {
			return nil, apperrors.ValidationField("after_id", "cursor must be a job id")
		}
		afterID = p.AfterID
	}

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
      SELECT `+jobColumns+`
      FROM gather_jobs
      WHERE status IN ('waiting', 'processing')
        AND ($1::timestamptz IS NULL OR updated_at < $1)
        AND ($2::uuid IS NULL OR id > $2)
      ORDER BY id
      LIMIT $3`, updatedBefore, afterID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, scanErr := scanJob(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}
