package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type inflightRepo struct{ q querier }

// AcquireOrSteal inserts a new lease row, or — on a (campaign_id, actor_id)
// conflict — overwrites it only if the existing row's expires_at is before
// now, implementing ClaimManager's acquire-or-steal semantics (spec §4.1)
// as a single atomic UPSERT rather than a read-then-write race.
func (r *inflightRepo) AcquireOrSteal(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error) {
	var acquired bool
	err := r.q.QueryRow(ctx, `
		INSERT INTO tge_inflight_turns (campaign_id, actor_id, claim_token, claimed_at, heartbeat_at, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (campaign_id, actor_id) DO UPDATE
		SET claim_token = EXCLUDED.claim_token, claimed_at = EXCLUDED.claimed_at,
		    heartbeat_at = EXCLUDED.heartbeat_at, expires_at = EXCLUDED.expires_at
		WHERE tge_inflight_turns.expires_at < $4
		RETURNING true`, campaignID, actorID, token, now, expiresAt).Scan(&acquired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return acquired, nil
}

func (r *inflightRepo) ValidateToken(ctx context.Context, campaignID, actorID, token string, now time.Time) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT true FROM tge_inflight_turns
		WHERE campaign_id = $1 AND actor_id = $2 AND claim_token = $3 AND expires_at >= $4`,
		campaignID, actorID, token, now).Scan(&ok)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (r *inflightRepo) Heartbeat(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_inflight_turns SET heartbeat_at = $1, expires_at = $2
		WHERE campaign_id = $3 AND actor_id = $4 AND claim_token = $5`,
		now, expiresAt, campaignID, actorID, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *inflightRepo) Release(ctx context.Context, campaignID, actorID, token string) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM tge_inflight_turns WHERE campaign_id = $1 AND actor_id = $2 AND claim_token = $3`,
		campaignID, actorID, token)
	return err
}
