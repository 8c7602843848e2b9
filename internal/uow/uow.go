// Package uow defines the transactional boundary grouping the store's
// repositories, grounded on original_source/persistence/sqlalchemy/uow.py:
// one transaction per unit of work, repositories constructed over that
// transaction, rollback on error, explicit commit.
package uow

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
)

// UnitOfWork groups repositories bound to a single transaction. Callers must
// call Commit or Rollback exactly once; Rollback is always safe to call
// after Commit (it becomes a no-op).
type UnitOfWork interface {
	Campaigns() store.CampaignRepo
	Actors() store.ActorRepo
	Sessions() store.SessionRepo
	Players() store.PlayerRepo
	Turns() store.TurnRepo
	Snapshots() store.SnapshotRepo
	Timers() store.TimerRepo
	Inflight() store.InflightTurnRepo
	Outbox() store.OutboxRepo

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a new UnitOfWork bound to a fresh transaction. The engine's
// four configuration knobs (spec §9 "Builders vs configs") name this
// uow_factory().
type Factory func(ctx context.Context) (UnitOfWork, error)

// Run opens a UnitOfWork, invokes fn, and commits on success or rolls back on
// error or panic. This is the idiomatic entry point Phase A and Phase C of
// TurnEngine.ResolveTurn use: Phase A is one call to Run; Phase C is one
// call to validate the claim token and a second that applies and commits.
func Run(ctx context.Context, factory Factory, fn func(ctx context.Context, u UnitOfWork) error) (err error) {
	u, err := factory(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(ctx, u); err != nil {
		_ = u.Rollback(ctx)
		return err
	}
	return u.Commit(ctx)
}
