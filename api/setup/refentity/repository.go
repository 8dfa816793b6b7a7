package refentity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SmartAd/internal/dbtx"
)

// PgRepository stores reference entities in PostgreSQL. Table and column
// names come from the closed Kind set, never from input.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) List(ctx context.Context, kind Kind) ([]Entity, error) {
	query := fmt.Sprintf(`SELECT id, code, name, status, COALESCE(created_by, ''), created_at FROM %s ORDER BY id`, kind.Table())
	rows, err := dbtx.Use(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Table(), err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e := Entity{Kind: kind}
		if err := rows.Scan(&e.ID, &e.Code, &e.Name, &e.Status, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind.Table(), err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgRepository) FindByKey(ctx context.Context, kind Kind, key string) (*Entity, error) {
	query := fmt.Sprintf(`SELECT id, code, name, status, COALESCE(created_by, ''), created_at FROM %s WHERE upper(%s) = $1`,
		kind.Table(), kind.KeyColumn())
	return r.scanOne(ctx, kind, query, key)
}

func (r *PgRepository) FindByID(ctx context.Context, kind Kind, id int64) (*Entity, error) {
	query := fmt.Sprintf(`SELECT id, code, name, status, COALESCE(created_by, ''), created_at FROM %s WHERE id = $1`, kind.Table())
	return r.scanOne(ctx, kind, query, id)
}

func (r *PgRepository) scanOne(ctx context.Context, kind Kind, query string, arg interface{}) (*Entity, error) {
	e := Entity{Kind: kind}
	err := dbtx.Use(ctx, r.pool).QueryRow(ctx, query, arg).
		Scan(&e.ID, &e.Code, &e.Name, &e.Status, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", kind.Table(), err)
	}
	return &e, nil
}

// Insert uses ON CONFLICT DO NOTHING so a concurrent creator of the same key
// turns into inserted=false; the caller re-reads the winner's row.
func (r *PgRepository) Insert(ctx context.Context, e Entity) (int64, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (code, name, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT DO NOTHING
		RETURNING id`, e.Kind.Table())

	var id int64
	err := dbtx.Use(ctx, r.pool).QueryRow(ctx, query, e.Code, e.Name, e.Status, e.CreatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert %s: %w", e.Kind.Table(), err)
	}
	return id, true, nil
}

// LockKey takes a transaction-scoped advisory lock on table:key. Outside a
// transaction there is nothing to hold the lock, so it is a no-op.
func (r *PgRepository) LockKey(ctx context.Context, kind Kind, key string) error {
	if !dbtx.InTransaction(ctx) {
		return nil
	}
	_, err := dbtx.Use(ctx, r.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, kind.Table()+":"+key)
	if err != nil {
		return fmt.Errorf("lock %s %q: %w", kind.Table(), key, err)
	}
	return nil
}
