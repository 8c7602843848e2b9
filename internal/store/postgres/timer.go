package postgres

import (
	"context"
	"time"

	"github.com/arcfable/campaignforge/internal/store"
)

type timerRepo struct{ q querier }

func (r *timerRepo) GetActiveForCampaign(ctx context.Context, campaignID string) (*store.Timer, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+timerColumns+`
		FROM tge_timers WHERE campaign_id = $1
		AND status IN ('scheduled_unbound', 'scheduled_bound')`, campaignID)
	return scanTimer(row)
}

func (r *timerRepo) Get(ctx context.Context, id string) (*store.Timer, error) {
	row := r.q.QueryRow(ctx, `SELECT `+timerColumns+` FROM tge_timers WHERE id = $1`, id)
	return scanTimer(row)
}

// Schedule cancels any active timer for the campaign, then inserts the new
// one as scheduled_unbound; the partial unique index on (campaign_id) WHERE
// status IN (...) also enforces this at the database level (spec §3, §4.5).
func (r *timerRepo) Schedule(ctx context.Context, t *store.Timer) error {
	if _, err := r.CancelActive(ctx, t.CampaignID, time.Now().UTC()); err != nil {
		return err
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO tge_timers (campaign_id, session_id, status, event_text, interruptible,
		                         interrupt_action, due_at, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		t.CampaignID, t.SessionID, string(store.TimerScheduledUnbound), t.EventText, t.Interruptible,
		t.InterruptAction, t.DueAt, docJSON(t.Meta), t.CreatedAt,
	).Scan(&t.ID)
}

func (r *timerRepo) AttachMessage(ctx context.Context, id, externalMessageID, externalChannelID, externalThreadID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_timers
		SET status = $1, external_message_id = $2, external_channel_id = $3, external_thread_id = $4, updated_at = now()
		WHERE id = $5 AND status = $6`,
		string(store.TimerScheduledBound), externalMessageID, externalChannelID, externalThreadID,
		id, string(store.TimerScheduledUnbound))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *timerRepo) CancelActive(ctx context.Context, campaignID string, now time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_timers SET status = $1, cancelled_at = $2, updated_at = now()
		WHERE campaign_id = $3 AND status IN ('scheduled_unbound', 'scheduled_bound')`,
		string(store.TimerCancelled), now, campaignID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *timerRepo) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_timers SET status = $1, fired_at = $2, updated_at = now()
		WHERE id = $3 AND status IN ('scheduled_unbound', 'scheduled_bound')`,
		string(store.TimerExpired), now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *timerRepo) MarkConsumed(ctx context.Context, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_timers SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		string(store.TimerConsumed), id, string(store.TimerExpired))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *timerRepo) RescheduleDueAt(ctx context.Context, id string, dueAt time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE tge_timers SET due_at = $1, updated_at = now() WHERE id = $2`, dueAt, id)
	return err
}

const timerColumns = `id, campaign_id, session_id, status, event_text, interruptible, interrupt_action,
		       due_at, fired_at, cancelled_at, external_message_id, external_channel_id,
		       external_thread_id, meta, created_at`

func scanTimer(row interface{ Scan(dest ...any) error }) (*store.Timer, error) {
	var t store.Timer
	var meta docJSON
	var status string
	err := row.Scan(&t.ID, &t.CampaignID, &t.SessionID, &status, &t.EventText, &t.Interruptible,
		&t.InterruptAction, &t.DueAt, &t.FiredAt, &t.CancelledAt, &t.ExternalMessageID,
		&t.ExternalChannelID, &t.ExternalThreadID, &meta, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.Status = store.TimerStatus(status)
	t.Meta = store.Document(meta)
	return &t, nil
}
