package postgres

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
)

type actorRepo struct{ q querier }

func (r *actorRepo) Get(ctx context.Context, id string) (*store.Actor, error) {
	row := r.q.QueryRow(ctx, `SELECT id, display_name, kind, metadata, created_at FROM tge_actors WHERE id = $1`, id)
	var a store.Actor
	var meta docJSON
	if err := row.Scan(&a.ID, &a.DisplayName, &a.Kind, &meta, &a.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	a.Metadata = store.Document(meta)
	return &a, nil
}

func (r *actorRepo) ResolveExternalRef(ctx context.Context, provider, externalID string) (*store.Actor, error) {
	row := r.q.QueryRow(ctx, `
		SELECT a.id, a.display_name, a.kind, a.metadata, a.created_at
		FROM tge_actors a
		JOIN tge_actor_external_refs r ON r.actor_id = a.id
		WHERE r.provider = $1 AND r.external_id = $2`, provider, externalID)
	var a store.Actor
	var meta docJSON
	if err := row.Scan(&a.ID, &a.DisplayName, &a.Kind, &meta, &a.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	a.Metadata = store.Document(meta)
	return &a, nil
}
