package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// UnitRecordRepo stores the per-unit outcome reported by workers.
type UnitRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUnitRecordRepo creates a UnitRecordRepo.
func NewUnitRecordRepo(db *sql.DB, tp TimeProvider) *UnitRecordRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &UnitRecordRepo{DB: db, timeProvider: tp}
}

// Upsert stores the outcome; a redelivered event overwrites the previous outcome.
func (r *UnitRecordRepo) Upsert(ctx context.Context, p core.UpsertUnitRecordParams) error {
	if !p.Outcome.Valid() {
		return apperrors.ValidationField("outcome", "invalid unit outcome")
	}
	if strings.TrimSpace(p.UnitRef) == "" {
		return apperrors.ValidationField("unit_ref", "unit ref is required")
	}
	if !validJobID(p.JobID) {
		return ErrJobNotFound
	}
	var reason any
	if s := strings.TrimSpace(p.ReasonForDev); s != "" {
		reason = s
	}
	now := r.timeProvider.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
    INSERT INTO unit_records (job_id, unit_ref, outcome, reason_for_dev, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $5)
    ON CONFLICT (job_id, unit_ref) DO UPDATE
    SET outcome = EXCLUDED.outcome,
        reason_for_dev = EXCLUDED.reason_for_dev,
        updated_at = EXCLUDED.updated_at`,
		p.JobID, strings.TrimSpace(p.UnitRef), p.Outcome, reason, now)
	if err != nil {
		return fmt.Errorf("upsert unit record: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get returns the stored outcome of one unit.
func (r *UnitRecordRepo) Get(ctx context.Context, jobID, unitRef string) (*model.UnitRecord, error) {
	if !validJobID(jobID) {
		return nil, apperrors.NotFound("unit record not found")
	}
	rec := &model.UnitRecord{}
	var reason sql.NullString
	err := r.DB.QueryRowContext(ctx, `
    SELECT job_id, unit_ref, outcome, reason_for_dev, updated_at
    FROM unit_records WHERE job_id = $1 AND unit_ref = $2`, jobID, unitRef,
	).Scan(&rec.JobID, &rec.UnitRef, &rec.Outcome, &reason, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("unit record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get unit record: %w", apperrors.MapDBError(err))
	}
	rec.ReasonForDev = cloneNullableString(reason)
	return rec, nil
}
