package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/arcfable/campaignforge/internal/store"
)

type campaignRepo struct{ q querier }

func (r *campaignRepo) Get(ctx context.Context, id string) (*store.Campaign, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, namespace, name, name_normalized, created_by_actor_id, summary,
		       state, characters, last_narration, memory_visible_max_turn_id,
		       speed_multiplier, row_version, created_at, updated_at
		FROM tge_campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

func (r *campaignRepo) GetByName(ctx context.Context, namespace, nameNormalized string) (*store.Campaign, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, namespace, name, name_normalized, created_by_actor_id, summary,
		       state, characters, last_narration, memory_visible_max_turn_id,
		       speed_multiplier, row_version, created_at, updated_at
		FROM tge_campaigns WHERE namespace = $1 AND name_normalized = $2`, namespace, nameNormalized)
	return scanCampaign(row)
}

func scanCampaign(row pgx.Row) (*store.Campaign, error) {
	var c store.Campaign
	var state, characters docJSON
	err := row.Scan(&c.ID, &c.Namespace, &c.Name, &c.NameNormalized, &c.CreatedByActorID, &c.Summary,
		&state, &characters, &c.LastNarration, &c.MemoryVisibleMaxTurnID,
		&c.SpeedMultiplier, &c.RowVersion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	c.State = store.Document(state)
	c.Characters = store.Document(characters)
	return &c, nil
}

func (r *campaignRepo) Create(ctx context.Context, c *store.Campaign) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO tge_campaigns (namespace, name, name_normalized, created_by_actor_id, summary, state, characters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, row_version, created_at, updated_at`,
		c.Namespace, c.Name, c.NameNormalized, c.CreatedByActorID, c.Summary,
		docJSON(c.State), docJSON(c.Characters),
	).Scan(&c.ID, &c.RowVersion, &c.CreatedAt, &c.UpdatedAt)
}

func (r *campaignRepo) CASApplyUpdate(ctx context.Context, id string, expectedRowVersion int64, upd store.CampaignUpdate) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tge_campaigns
		SET summary = $1, state = $2, characters = $3, last_narration = $4,
		    memory_visible_max_turn_id = $5, row_version = row_version + 1, updated_at = now()
		WHERE id = $6 AND row_version = $7`,
		upd.Summary, docJSON(upd.State), docJSON(upd.Characters), upd.LastNarration,
		upd.MemoryVisibleMaxTurnID, id, expectedRowVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConcurrentModification
	}
	return nil
}
