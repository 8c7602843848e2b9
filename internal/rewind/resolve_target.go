package rewind

import (
	"context"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
)

// ResolveRewindTarget maps an externally-addressed message (e.g. "rewind to
// this Discord message") to the narrator turn id RewindToTurn should target,
// grounded on zork_emulator.py::_resolve_rewind_target_turn_id (SPEC_FULL
// §4.7): if externalMessageID names a narrator turn directly, rewind to it;
// if it names a player turn, rewind to the first narrator turn at or after
// it, since a player turn has no snapshot of its own. Returns
// store.ErrNotFound if externalMessageID matches neither.
func ResolveRewindTarget(ctx context.Context, uowFactory uow.Factory, campaignID, externalMessageID string) (int64, error) {
	var targetTurnID int64
	err := uow.Run(ctx, uowFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		if t, err := u.Turns().GetByExternalMessageID(ctx, campaignID, externalMessageID); err == nil {
			targetTurnID = t.ID
			return nil
		} else if err != store.ErrNotFound {
			return err
		}

		playerTurn, err := u.Turns().GetByExternalUserMessageID(ctx, campaignID, externalMessageID)
		if err != nil {
			return err
		}
		narratorTurn, err := u.Turns().FirstNarratorAtOrAfter(ctx, campaignID, playerTurn.ID)
		if err != nil {
			return err
		}
		targetTurnID = narratorTurn.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return targetTurnID, nil
}
