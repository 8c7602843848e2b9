package postgres

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/jackc/pgx/v5"
)

type turnRepo struct{ q querier }

func (r *turnRepo) Add(ctx context.Context, t *store.Turn) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO tge_turns (campaign_id, session_id, actor_id, kind, content, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		t.CampaignID, t.SessionID, t.ActorID, string(t.Kind), t.Content, docJSON(t.Meta), t.CreatedAt,
	).Scan(&id)
	t.ID = id
	return id, err
}

func (r *turnRepo) Recent(ctx context.Context, campaignID string, limit int) ([]store.Turn, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM (
			SELECT * FROM tge_turns WHERE campaign_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id ASC`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Turn
	for rows.Next() {
		t, err := scanTurnRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *turnRepo) Get(ctx context.Context, campaignID string, turnID int64) (*store.Turn, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM tge_turns WHERE campaign_id = $1 AND id = $2`, campaignID, turnID)
	return scanTurnRow(row)
}

func (r *turnRepo) GetByExternalMessageID(ctx context.Context, campaignID, externalMessageID string) (*store.Turn, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM tge_turns WHERE campaign_id = $1 AND external_message_id = $2
		AND kind = 'narrator'`, campaignID, externalMessageID)
	return scanTurnRow(row)
}

func (r *turnRepo) GetByExternalUserMessageID(ctx context.Context, campaignID, externalUserMessageID string) (*store.Turn, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM tge_turns WHERE campaign_id = $1 AND external_user_message_id = $2`, campaignID, externalUserMessageID)
	return scanTurnRow(row)
}

func (r *turnRepo) FirstNarratorAtOrAfter(ctx context.Context, campaignID string, turnID int64) (*store.Turn, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM tge_turns WHERE campaign_id = $1 AND id >= $2 AND kind = 'narrator'
		ORDER BY id ASC LIMIT 1`, campaignID, turnID)
	return scanTurnRow(row)
}

func (r *turnRepo) DeleteAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) (int, error) {
	var tag interface{ RowsAffected() int64 }
	var err error
	if len(sessionIDs) == 0 {
		tag, err = r.q.Exec(ctx, `DELETE FROM tge_turns WHERE campaign_id = $1 AND id > $2`, campaignID, turnID)
	} else {
		tag, err = r.q.Exec(ctx, `
			DELETE FROM tge_turns WHERE campaign_id = $1 AND id > $2 AND session_id = ANY($3)`,
			campaignID, turnID, sessionIDs)
	}
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *turnRepo) NarratorIDsAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) ([]int64, error) {
	var rows pgx.Rows
	var err error
	if len(sessionIDs) == 0 {
		rows, err = r.q.Query(ctx, `
			SELECT id FROM tge_turns WHERE campaign_id = $1 AND kind = $2 AND id > $3`,
			campaignID, string(store.TurnKindNarrator), turnID)
	} else {
		rows, err = r.q.Query(ctx, `
			SELECT id FROM tge_turns WHERE campaign_id = $1 AND kind = $2 AND id > $3 AND session_id = ANY($4)`,
			campaignID, string(store.TurnKindNarrator), turnID, sessionIDs)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *turnRepo) LatestOfKind(ctx context.Context, campaignID string, kind store.TurnKind) (*store.Turn, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, campaign_id, session_id, actor_id, kind, content, meta,
		       external_message_id, external_user_message_id, created_at
		FROM tge_turns WHERE campaign_id = $1 AND kind = $2
		ORDER BY id DESC LIMIT 1`, campaignID, string(kind))
	return scanTurnRow(row)
}

func (r *turnRepo) StampExternalMessageID(ctx context.Context, turnID int64, externalMessageID string) error {
	_, err := r.q.Exec(ctx, `UPDATE tge_turns SET external_message_id = $1 WHERE id = $2`, externalMessageID, turnID)
	return err
}

func (r *turnRepo) StampExternalUserMessageID(ctx context.Context, turnID int64, externalUserMessageID string) error {
	_, err := r.q.Exec(ctx, `UPDATE tge_turns SET external_user_message_id = $1 WHERE id = $2`, externalUserMessageID, turnID)
	return err
}

func scanTurnRow(row interface{ Scan(dest ...any) error }) (*store.Turn, error) {
	var t store.Turn
	var meta docJSON
	var kind string
	err := row.Scan(&t.ID, &t.CampaignID, &t.SessionID, &t.ActorID, &kind, &t.Content, &meta,
		&t.ExternalMessageID, &t.ExternalUserMsgID, &t.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	t.Kind = store.TurnKind(kind)
	t.Meta = store.Document(meta)
	return &t, nil
}
