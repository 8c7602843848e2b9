package postgres

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
)

type sessionRepo struct{ q querier }

func (r *sessionRepo) Get(ctx context.Context, id string) (*store.Session, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, surface, surface_key, surface_guild_id,
		       surface_channel_id, surface_thread_id, enabled, metadata, created_at
		FROM tge_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func scanSession(row interface{ Scan(dest ...any) error }) (*store.Session, error) {
	var s store.Session
	var meta docJSON
	err := row.Scan(&s.ID, &s.CampaignID, &s.Surface, &s.SurfaceKey, &s.SurfaceGuildID,
		&s.SurfaceChannelID, &s.SurfaceThreadID, &s.Enabled, &meta, &s.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	s.Metadata = store.Document(meta)
	return &s, nil
}

// SessionIDsForSurface returns sessions in the campaign whose channel,
// thread, or surface key equals surfaceRef, used by channel-scoped rewind
// (spec §4.6 step 5 / SPEC_FULL §4.7).
func (r *sessionRepo) SessionIDsForSurface(ctx context.Context, campaignID, surfaceRef string) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id FROM tge_sessions
		WHERE campaign_id = $1 AND (surface_channel_id = $2 OR surface_thread_id = $2 OR surface_key = $2)`,
		campaignID, surfaceRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
