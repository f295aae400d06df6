package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/interop/jobgather/internal/data/pgxutil"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// ResultRepo reads result records written by gateway workers.
type ResultRepo struct {
	DB *sql.DB
}

// NewResultRepo creates a ResultRepo.
func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{DB: db}
}

// QueryByCorrelationID returns every record for the request, oldest first. Duplicates are
// returned as stored; readers keep the newest row per (target, chunk).
func (r *ResultRepo) QueryByCorrelationID(ctx context.Context, correlationID string) ([]model.ResultRecord, error) {
	var out []model.ResultRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
      SELECT id, request_id, target_id, request_chunk_id, status, payload, created_at
      FROM result_records
      WHERE request_id = $1
      ORDER BY created_at, id`, correlationID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				rec     model.ResultRecord
				payload []byte
			)
			if scanErr := rows.Scan(&rec.ID, &rec.RequestID, &rec.TargetID, &rec.RequestChunkID,
				&rec.Status, &payload, &rec.CreatedAt); scanErr != nil {
				return scanErr
			}
			rec.Payload = append(json.RawMessage(nil), payload...)
			rec.CreatedAt = rec.CreatedAt.UTC()
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query results %s: %w", correlationID, apperrors.MapDBError(err))
	}
	return out, nil
}

// CountByCorrelationID counts distinct (target, chunk) results for the request.
func (r *ResultRepo) CountByCorrelationID(ctx context.Context, correlationID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
    SELECT COUNT(DISTINCT (target_id, request_chunk_id))
    FROM result_records
    WHERE request_id = $1`, correlationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count results %s: %w", correlationID, apperrors.MapDBError(err))
	}
	return n, nil
}

// Insert stores one result record. Used by in-process gateway adapters and tests.
func (r *ResultRepo) Insert(ctx context.Context, rec model.ResultRecord) error {
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
    INSERT INTO result_records (request_id, target_id, request_chunk_id, status, payload, created_at)
    VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`,
		rec.RequestID, rec.TargetID, rec.RequestChunkID, rec.Status, []byte(payload), createdAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", apperrors.MapDBError(err))
	}
	return nil
}
