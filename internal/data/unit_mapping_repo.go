package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/interop/jobgather/internal/data/pgxutil"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// ErrMappingNotFound is returned when no unit mapping matches.
var ErrMappingNotFound = apperrors.NotFound("unit mapping not found")

const unitMappingColumns = `id, job_id, unit_ref, correlation_id, created_at`

// UnitMappingRepo persists the correlation between dispatched units and jobs.
type UnitMappingRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUnitMappingRepo creates a UnitMappingRepo.
func NewUnitMappingRepo(db *sql.DB, tp TimeProvider) *UnitMappingRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &UnitMappingRepo{DB: db, timeProvider: tp}
}

func scanUnitMapping(s rowScanner) (*model.UnitMapping, error) {
	m := &model.UnitMapping{}
	if err := s.Scan(&m.ID, &m.JobID, &m.UnitRef, &m.CorrelationID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func normalizeMappingRequest(req *model.CreateUnitMappingRequest) (*model.CreateUnitMappingRequest, error) {
	if req == nil {
		return nil, apperrors.Validation("create unit mapping request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid unit mapping")
	}
	out := *req
	out.UnitRef = strings.TrimSpace(out.UnitRef)
	if strings.TrimSpace(out.CorrelationID) == "" {
		out.CorrelationID = uuid.NewString()
	}
	return &out, nil
}

const insertUnitMappingSQL = `
  INSERT INTO unit_mappings (id, job_id, unit_ref, correlation_id, created_at)
  VALUES ($1, $2, $3, $4, $5)
  RETURNING ` + unitMappingColumns

// Create registers one dispatched unit. A second mapping for the same (job, unit) or the same
// correlation id is a Conflict.
func (r *UnitMappingRepo) Create(ctx context.Context, req *model.CreateUnitMappingRequest) (*model.UnitMapping, error) {
	norm, err := normalizeMappingRequest(req)
	if err != nil {
		return nil, err
	}
	if !validJobID(norm.JobID) {
		return nil, ErrJobNotFound
	}
	row := r.DB.QueryRowContext(ctx, insertUnitMappingSQL,
		uuid.NewString(), norm.JobID, norm.UnitRef, norm.CorrelationID, r.timeProvider.Now().UTC())
	m, err := scanUnitMapping(row)
	if err != nil {
		return nil, fmt.Errorf("create unit mapping: %w", apperrors.MapDBError(err))
	}
	return m, nil
}

// CreateBatch registers many units of one dispatch atomically using a pgx batch.
func (r *UnitMappingRepo) CreateBatch(
	ctx context.Context,
	reqs []*model.CreateUnitMappingRequest,
) ([]*model.UnitMapping, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	now := r.timeProvider.Now().UTC()
	batch := &pgx.Batch{}
	for _, req := range reqs {
		norm, err := normalizeMappingRequest(req)
		if err != nil {
			return nil, err
		}
		if !validJobID(norm.JobID) {
			return nil, ErrJobNotFound
		}
		batch.Queue(insertUnitMappingSQL, uuid.NewString(), norm.JobID, norm.UnitRef, norm.CorrelationID, now)
	}

	out := make([]*model.UnitMapping, 0, len(reqs))
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			results := tx.SendBatch(ctx, batch)
			for range reqs {
				m, scanErr := scanUnitMapping(results.QueryRow())
				if scanErr != nil {
					_ = results.Close()
					return scanErr
				}
				out = append(out, m)
			}
			return results.Close()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create unit mappings: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetByCorrelationID resolves the mapping a worker echoed back.
func (r *UnitMappingRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*model.UnitMapping, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+unitMappingColumns+` FROM unit_mappings WHERE correlation_id = $1`, correlationID)
	return r.get(row)
}

// GetByUnit resolves the mapping for a job's unit.
func (r *UnitMappingRepo) GetByUnit(ctx context.Context, jobID, unitRef string) (*model.UnitMapping, error) {
	if !validJobID(jobID) {
		return nil, ErrMappingNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+unitMappingColumns+` FROM unit_mappings WHERE job_id = $1 AND unit_ref = $2`,
		jobID, strings.TrimSpace(unitRef))
	return r.get(row)
}

func (r *UnitMappingRepo) get(row *sql.Row) (*model.UnitMapping, error) {
	m, err := scanUnitMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get unit mapping: %w", apperrors.MapDBError(err))
	}
	return m, nil
}
