package ratesupload

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"SmartAd/internal/dbtx"
)

type PgRateRepository struct {
	pool *pgxpool.Pool
}

func NewPgRateRepository(pool *pgxpool.Pool) *PgRateRepository {
	return &PgRateRepository{pool: pool}
}

func (r *PgRateRepository) FindOverlapping(ctx context.Context, deps DependencyIDs, p Period) ([]Rate, error) {
	query := `
		SELECT id, publication_id, ad_category_id, ad_size_id, page_position_id, color_type_id,
			base_rate, currency_id, effective_from, effective_to, status, COALESCE(notes, ''),
			is_deleted, COALESCE(created_by, ''), created_at, COALESCE(updated_by, ''), updated_at
		FROM rates
		WHERE publication_id = $1 AND ad_category_id = $2 AND ad_size_id = $3
		  AND page_position_id = $4 AND color_type_id = $5
		  AND status = 'active' AND is_deleted = false
		  AND effective_from <= $7 AND $6 <= effective_to
		ORDER BY id`
	if dbtx.InTransaction(ctx) {
		query += ` FOR UPDATE`
	}
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx, query,
		deps.PublicationID, deps.AdCategoryID, deps.AdSizeID, deps.PagePositionID, deps.ColorTypeID,
		p.From.Time, p.To.Time)
	if err != nil {
		return nil, fmt.Errorf("find overlapping rates: %w", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var (
			rate     Rate
			from, to time.Time
			status   string
		)
		if err := rows.Scan(&rate.ID, &rate.Dependencies.PublicationID, &rate.Dependencies.AdCategoryID,
			&rate.Dependencies.AdSizeID, &rate.Dependencies.PagePositionID, &rate.Dependencies.ColorTypeID,
			&rate.BaseRate, &rate.CurrencyID, &from, &to, &status, &rate.Notes,
			&rate.IsDeleted, &rate.CreatedBy, &rate.CreatedAt, &rate.UpdatedBy, &rate.UpdatedAt); err != nil {
			return nil, err
		}
		rate.EffectiveFrom, rate.EffectiveTo = Date{from}, Date{to}
		rate.Status = RateStatus(status)
		out = append(out, rate)
	}
	return out, rows.Err()
}

func (r *PgRateRepository) LockTuple(ctx context.Context, deps DependencyIDs) error {
	if !dbtx.InTransaction(ctx) {
		return nil
	}
	key := fmt.Sprintf("rates:%d:%d:%d:%d:%d", deps.PublicationID, deps.AdCategoryID, deps.AdSizeID,
		deps.PagePositionID, deps.ColorTypeID)
	if _, err := dbtx.Use(ctx, r.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock rate tuple: %w", err)
	}
	return nil
}

func (r *PgRateRepository) Insert(ctx context.Context, rate Rate) (int64, error) {
	var id int64
	err := dbtx.Use(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO rates (publication_id, ad_category_id, ad_size_id, page_position_id, color_type_id,
			base_rate, currency_id, effective_from, effective_to, status, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, now())
		RETURNING id`,
		rate.Dependencies.PublicationID, rate.Dependencies.AdCategoryID, rate.Dependencies.AdSizeID,
		rate.Dependencies.PagePositionID, rate.Dependencies.ColorTypeID,
		rate.BaseRate, rate.CurrencyID, rate.EffectiveFrom.Time, rate.EffectiveTo.Time,
		string(rate.Status), rate.Notes, rate.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rate: %w", err)
	}
	return id, nil
}

func (r *PgRateRepository) Update(ctx context.Context, rate Rate) error {
	tag, err := dbtx.Use(ctx, r.pool).Exec(ctx, `
		UPDATE rates SET base_rate = $2, currency_id = $3, effective_from = $4, effective_to = $5,
			status = $6, notes = NULLIF($7, ''), updated_by = $8, updated_at = now()
		WHERE id = $1 AND is_deleted = false`,
		rate.ID, rate.BaseRate, rate.CurrencyID, rate.EffectiveFrom.Time, rate.EffectiveTo.Time,
		string(rate.Status), rate.Notes, rate.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update rate %d: %w", rate.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update rate %d: no active row", rate.ID)
	}
	return nil
}

func (r *PgRateRepository) SoftDelete(ctx context.Context, id int64, by string) error {
	_, err := dbtx.Use(ctx, r.pool).Exec(ctx,
		`UPDATE rates SET is_deleted = true, updated_by = $2, updated_at = now() WHERE id = $1`, id, by)
	if err != nil {
		return fmt.Errorf("retire rate %d: %w", id, err)
	}
	return nil
}
