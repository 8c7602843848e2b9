package postgres

import (
	"context"
	"encoding/json"

	"github.com/arcfable/campaignforge/internal/store"
)

type playerRepo struct{ q querier }

func (r *playerRepo) GetByCampaignActor(ctx context.Context, campaignID, actorID string) (*store.Player, error) {
	row := r.q.QueryRow(ctx, `
		SELECT campaign_id, actor_id, level, xp, attributes, state, last_active_at
		FROM tge_players WHERE campaign_id = $1 AND actor_id = $2`, campaignID, actorID)
	return scanPlayer(row)
}

func scanPlayer(row interface{ Scan(dest ...any) error }) (*store.Player, error) {
	var p store.Player
	var attrs, state docJSON
	if err := row.Scan(&p.CampaignID, &p.ActorID, &p.Level, &p.XP, &attrs, &state, &p.LastActiveAt); err != nil {
		return nil, mapNotFound(err)
	}
	p.Attributes = store.Document(attrs)
	p.State = store.Document(state)
	return &p, nil
}

// UpsertLazy creates a default Player row on first reference (spec §3
// "Players are created lazily") via INSERT ... ON CONFLICT DO NOTHING,
// returning the resulting row either way.
func (r *playerRepo) UpsertLazy(ctx context.Context, campaignID, actorID string) (*store.Player, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tge_players (campaign_id, actor_id)
		VALUES ($1, $2)
		ON CONFLICT (campaign_id, actor_id) DO NOTHING`, campaignID, actorID)
	if err != nil {
		return nil, err
	}
	return r.GetByCampaignActor(ctx, campaignID, actorID)
}

func (r *playerRepo) Update(ctx context.Context, p *store.Player) error {
	_, err := r.q.Exec(ctx, `
		UPDATE tge_players
		SET level = $1, xp = $2, attributes = $3, state = $4, last_active_at = $5, updated_at = now()
		WHERE campaign_id = $6 AND actor_id = $7`,
		p.Level, p.XP, docJSON(p.Attributes), docJSON(p.State), p.LastActiveAt, p.CampaignID, p.ActorID)
	return err
}

func (r *playerRepo) ListByCampaign(ctx context.Context, campaignID string) ([]store.Player, error) {
	rows, err := r.q.Query(ctx, `
		SELECT campaign_id, actor_id, level, xp, attributes, state, last_active_at
		FROM tge_players WHERE campaign_id = $1 ORDER BY actor_id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Player
	for rows.Next() {
		var p store.Player
		var attrs, state docJSON
		if err := rows.Scan(&p.CampaignID, &p.ActorID, &p.Level, &p.XP, &attrs, &state, &p.LastActiveAt); err != nil {
			return nil, err
		}
		p.Attributes = store.Document(attrs)
		p.State = store.Document(state)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RestoreFromSnapshot overwrites each referenced player's mutable fields
// (rewind step 4); players is the []store.PlayerSnapshot list carried by the
// Snapshot row.
func (r *playerRepo) RestoreFromSnapshot(ctx context.Context, campaignID string, players []store.PlayerSnapshot) error {
	for _, p := range players {
		attrs, err := json.Marshal(map[string]any(p.Attributes))
		if err != nil {
			return err
		}
		state, err := json.Marshal(map[string]any(p.State))
		if err != nil {
			return err
		}
		if _, err := r.q.Exec(ctx, `
			UPDATE tge_players
			SET level = $1, xp = $2, attributes = $3, state = $4, updated_at = now()
			WHERE campaign_id = $5 AND actor_id = $6`,
			p.Level, p.XP, attrs, state, campaignID, p.ActorID); err != nil {
			return err
		}
	}
	return nil
}
