package ratesupload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SmartAd/api/constants"
	"SmartAd/internal/dbtx"
)

const stagingColumns = `id, upload_session_id, user_id, row_number, raw_data, validation_status,
	COALESCE(validation_message, ''), resolution, merge_resolution, final_status,
	COALESCE(final_message, ''), created_at`

type PgStagingRepository struct {
	pool *pgxpool.Pool
}

func NewPgStagingRepository(pool *pgxpool.Pool) *PgStagingRepository {
	return &PgStagingRepository{pool: pool}
}

func (r *PgStagingRepository) CreateSession(ctx context.Context, s UploadSession) error {
	_, err := dbtx.Use(ctx, r.pool).Exec(ctx, `
		INSERT INTO rate_upload_sessions (id, user_id, file_name, file_hash, total_rows, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.FileName, s.FileHash, s.TotalRows, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload session: %w", err)
	}
	return nil
}

func (r *PgStagingRepository) GetSession(ctx context.Context, id uuid.UUID) (*UploadSession, error) {
	return r.scanSession(dbtx.Use(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, COALESCE(file_name, ''), COALESCE(file_hash, ''), total_rows, created_at
		FROM rate_upload_sessions WHERE id = $1`, id))
}

func (r *PgStagingRepository) FindSessionByHash(ctx context.Context, userID, hash string) (*UploadSession, error) {
	return r.scanSession(dbtx.Use(ctx, r.pool).QueryRow(ctx, `
		SELECT s.id, s.user_id, COALESCE(s.file_name, ''), COALESCE(s.file_hash, ''), s.total_rows, s.created_at
		FROM rate_upload_sessions s
		WHERE s.user_id = $1 AND s.file_hash = $2
		  AND EXISTS (SELECT 1 FROM rate_upload_staging r
		              WHERE r.upload_session_id = s.id AND r.final_status = 'pending')
		ORDER BY s.created_at DESC
		LIMIT 1`, userID, hash))
}

func (r *PgStagingRepository) scanSession(row pgx.Row) (*UploadSession, error) {
	var s UploadSession
	err := row.Scan(&s.ID, &s.UserID, &s.FileName, &s.FileHash, &s.TotalRows, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load upload session: %w", err)
	}
	return &s, nil
}

func (r *PgStagingRepository) InsertRecords(ctx context.Context, records []StagingRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		resolution, err := jsonOrNil(rec.Resolution)
		if err != nil {
			return nil, err
		}
		merge, err := jsonOrNil(rec.MergeResolution)
		if err != nil {
			return nil, err
		}
		batch.Queue(`
			INSERT INTO rate_upload_staging (upload_session_id, user_id, row_number, raw_data, validation_status,
				validation_message, resolution, merge_resolution, final_status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			rec.SessionID, rec.UserID, rec.RowNumber, []byte(rec.RawData), string(rec.ValidationStatus),
			rec.ValidationMessage, resolution, merge, string(rec.FinalStatus), rec.CreatedAt)
	}

	br := dbtx.Use(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()

	ids := make([]int64, len(records))
	for i := range records {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("insert staging row %d: %w", records[i].RowNumber, err)
		}
	}
	return ids, nil
}

func (r *PgStagingRepository) ListSessionSummaries(ctx context.Context, userID string) ([]SessionSummary, error) {
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx, `
		SELECT s.id, COALESCE(s.file_name, ''), s.created_at,
			COUNT(r.id),
			COUNT(*) FILTER (WHERE r.validation_status = 'ok'),
			COUNT(*) FILTER (WHERE r.validation_status = 'warning'),
			COUNT(*) FILTER (WHERE r.validation_status = 'duplicate'),
			COUNT(*) FILTER (WHERE r.validation_status = 'error'),
			COUNT(*) FILTER (WHERE r.final_status = 'pending')
		FROM rate_upload_sessions s
		LEFT JOIN rate_upload_staging r ON r.upload_session_id = s.id
		WHERE s.user_id = $1
		GROUP BY s.id, s.file_name, s.created_at
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.FileName, &s.CreatedAt,
			&s.Total, &s.OK, &s.Warning, &s.Duplicate, &s.Error, &s.Pending); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgStagingRepository) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]StagingRecord, error) {
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx,
		`SELECT `+stagingColumns+` FROM rate_upload_staging WHERE upload_session_id = $1 ORDER BY row_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	return collectRecords(rows)
}

func (r *PgStagingRepository) GetRecord(ctx context.Context, sessionID uuid.UUID, id int64) (*StagingRecord, error) {
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx,
		`SELECT `+stagingColumns+` FROM rate_upload_staging WHERE upload_session_id = $1 AND id = $2`, sessionID, id)
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	records, err := collectRecords(rows)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (r *PgStagingRepository) LockRecords(ctx context.Context, sessionID uuid.UUID, ids []int64) ([]StagingRecord, error) {
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx,
		`SELECT `+stagingColumns+` FROM rate_upload_staging
		 WHERE upload_session_id = $1 AND id = ANY($2)
		 ORDER BY row_number
		 FOR UPDATE`, sessionID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock staging rows: %w", err)
	}
	return collectRecords(rows)
}

func (r *PgStagingRepository) UpdateMergeResolution(ctx context.Context, sessionID uuid.UUID, id int64, mr MergeResolution) (bool, error) {
	payload, err := jsonOrNil(mr)
	if err != nil {
		return false, err
	}
	tag, err := dbtx.Use(ctx, r.pool).Exec(ctx, `
		UPDATE rate_upload_staging SET merge_resolution = $3
		WHERE upload_session_id = $1 AND id = $2 AND final_status = 'pending'`,
		sessionID, id, payload)
	if err != nil {
		return false, fmt.Errorf("update merge resolution: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgStagingRepository) UpdateFinalStatus(ctx context.Context, id int64, status FinalStatus, message string) error {
	_, err := dbtx.Use(ctx, r.pool).Exec(ctx,
		`UPDATE rate_upload_staging SET final_status = $2, final_message = $3 WHERE id = $1`,
		id, string(status), message)
	if err != nil {
		return fmt.Errorf("update final status: %w", err)
	}
	return nil
}

func (r *PgStagingRepository) CountPending(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := dbtx.Use(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM rate_upload_staging WHERE upload_session_id = $1 AND final_status = 'pending'`,
		sessionID).Scan(&n)
	return n, err
}

func (r *PgStagingRepository) DeleteSession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	db := dbtx.Use(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM rate_upload_staging WHERE upload_session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete staging rows: %w", err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM rate_upload_sessions WHERE id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("delete upload session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgStagingRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	db := dbtx.Use(ctx, r.pool)
	tag, err := db.Exec(ctx, `
		WITH doomed AS (
			SELECT id FROM rate_upload_staging
			WHERE created_at < $1
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM rate_upload_staging r USING doomed WHERE r.id = doomed.id`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge staging rows: %w", err)
	}
	_, err = db.Exec(ctx, `
		DELETE FROM rate_upload_sessions s
		WHERE s.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM rate_upload_staging r WHERE r.upload_session_id = s.id)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge upload sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectRecords(rows pgx.Rows) ([]StagingRecord, error) {
	defer rows.Close()
	var out []StagingRecord
	for rows.Next() {
		var (
			rec                          StagingRecord
			raw, resolution, merge       []byte
			validationStatus, finalState string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.RowNumber, &raw, &validationStatus,
			&rec.ValidationMessage, &resolution, &merge, &finalState, &rec.FinalMessage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RawData = json.RawMessage(raw)
		rec.ValidationStatus = ValidationStatus(validationStatus)
		rec.FinalStatus = FinalStatus(finalState)
		if len(resolution) > 0 {
			rec.Resolution = &ResolutionResult{}
			if err := json.Unmarshal(resolution, rec.Resolution); err != nil {
				return nil, fmt.Errorf("decode resolution of row %d: %w", rec.RowNumber, err)
			}
		}
		if len(merge) > 0 {
			if err := json.Unmarshal(merge, &rec.MergeResolution); err != nil {
				return nil, fmt.Errorf("decode merge resolution of row %d: %w", rec.RowNumber, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// jsonOrNil keeps empty payloads as SQL NULL.
func jsonOrNil(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *ResolutionResult:
		if t == nil {
			return nil, nil
		}
	case MergeResolution:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
