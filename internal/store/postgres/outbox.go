package postgres

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
)

type outboxRepo struct{ q querier }

// Add inserts an outbox event; a duplicate (campaign_id, session_scope,
// event_type, idempotency_key) is a silent no-op via ON CONFLICT DO NOTHING,
// matching the unique constraint backing spec invariant 5.
func (r *outboxRepo) Add(ctx context.Context, e *store.OutboxEvent) error {
	scope := e.SessionScope
	if scope == "" {
		scope = store.NoneSessionScope
	}
	status := e.Status
	if status == "" {
		status = "pending"
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO tge_outbox_events (campaign_id, session_scope, event_type, idempotency_key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (campaign_id, session_scope, event_type, idempotency_key) DO NOTHING`,
		e.CampaignID, scope, e.EventType, e.IdempotencyKey, docJSON(e.Payload), status)
	return err
}
