package postgres

import (
	"context"
	"encoding/json"

	"github.com/arcfable/campaignforge/internal/store"
)

type snapshotRepo struct{ q querier }

func (r *snapshotRepo) Add(ctx context.Context, s *store.Snapshot) error {
	players, err := json.Marshal(s.Players)
	if err != nil {
		return err
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO tge_snapshots (turn_id, campaign_id, campaign_state, campaign_characters,
		                            campaign_summary, campaign_last_narration, players, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		s.TurnID, s.CampaignID, docJSON(s.CampaignState), docJSON(s.CampaignCharacters),
		s.CampaignSummary, s.CampaignLastNarration, players, s.CreatedAt,
	).Scan(&s.ID)
}

func (r *snapshotRepo) GetByTurnID(ctx context.Context, turnID int64) (*store.Snapshot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, turn_id, campaign_id, campaign_state, campaign_characters,
		       campaign_summary, campaign_last_narration, players, created_at
		FROM tge_snapshots WHERE turn_id = $1`, turnID)
	return scanSnapshot(row)
}

func (r *snapshotRepo) GetByCampaignTurnID(ctx context.Context, campaignID string, turnID int64) (*store.Snapshot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, turn_id, campaign_id, campaign_state, campaign_characters,
		       campaign_summary, campaign_last_narration, players, created_at
		FROM tge_snapshots WHERE campaign_id = $1 AND turn_id = $2`, campaignID, turnID)
	return scanSnapshot(row)
}

func (r *snapshotRepo) DeleteByTurnIDs(ctx context.Context, campaignID string, turnIDs []int64) (int, error) {
	if len(turnIDs) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM tge_snapshots WHERE campaign_id = $1 AND turn_id = ANY($2)`, campaignID, turnIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanSnapshot(row interface{ Scan(dest ...any) error }) (*store.Snapshot, error) {
	var s store.Snapshot
	var state, characters docJSON
	var players []byte
	err := row.Scan(&s.ID, &s.TurnID, &s.CampaignID, &state, &characters,
		&s.CampaignSummary, &s.CampaignLastNarration, &players, &s.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	s.CampaignState = store.Document(state)
	s.CampaignCharacters = store.Document(characters)
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, err
	}
	return &s, nil
}
