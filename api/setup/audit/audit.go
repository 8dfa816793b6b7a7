// Package audit records create/update/delete operations on setup data with
// before and after payloads.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"SmartAd/api/constants"
	"SmartAd/internal/dbtx"
)

type Entry struct {
	EntityType  string      `json:"entity_type"`
	EntityID    string      `json:"entity_id"`
	Action      string      `json:"action"`
	Before      interface{} `json:"before,omitempty"`
	After       interface{} `json:"after,omitempty"`
	PerformedBy string      `json:"performed_by"`
	PerformedAt time.Time   `json:"performed_at"`
}

func Created(entityType, entityID string, after interface{}, by string) Entry {
	return Entry{EntityType: entityType, EntityID: entityID, Action: constants.AuditActionCreate, After: after, PerformedBy: by}
}

func Updated(entityType, entityID string, before, after interface{}, by string) Entry {
	return Entry{EntityType: entityType, EntityID: entityID, Action: constants.AuditActionUpdate, Before: before, After: after, PerformedBy: by}
}

func Deleted(entityType, entityID string, before interface{}, by string) Entry {
	return Entry{EntityType: entityType, EntityID: entityID, Action: constants.AuditActionDelete, Before: before, PerformedBy: by}
}

// Sink persists audit entries. Record joins the caller's transaction when
// ctx carries one, so a rolled back operation leaves no audit trail.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

type PgSink struct {
	pool *pgxpool.Pool
}

func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

func (s *PgSink) Record(ctx context.Context, e Entry) error {
	before, err := marshalPayload(e.Before)
	if err != nil {
		return fmt.Errorf("audit before payload: %w", err)
	}
	after, err := marshalPayload(e.After)
	if err != nil {
		return fmt.Errorf("audit after payload: %w", err)
	}
	at := e.PerformedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = dbtx.Use(ctx, s.pool).Exec(ctx, `
		INSERT INTO setup_audit_log (entity_type, entity_id, action, before_data, after_data, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.EntityType, e.EntityID, e.Action, before, after, e.PerformedBy, at,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// marshalPayload returns nil for an absent payload so the column stays NULL.
func marshalPayload(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
