package turn

import (
	"context"
	"time"

	"github.com/arcfable/campaignforge/internal/claim"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
	"github.com/arcfable/campaignforge/ports"
)

type phaseAOutput struct {
	context    ports.TurnContext
	claimToken string
	campaignID string
	actorID    string
}

// phaseA is spec §4.2's "Phase A — build context": one transaction that
// loads the campaign, acquires or steals the (campaign, actor) lease,
// lazily upserts the player, loads recent turns, and builds the context the
// LLM will see. No lock is held once this transaction commits.
func (e *Engine) phaseA(ctx context.Context, input ResolveTurnInput) (phaseAOutput, error) {
	var out phaseAOutput

	err := uow.Run(ctx, e.cfg.UOWFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		campaign, err := u.Campaigns().Get(ctx, input.CampaignID)
		if err != nil {
			if err == store.ErrNotFound {
				return newTurnBusy(ReasonCampaignNotFound)
			}
			return err
		}

		cm := claim.New(u.Inflight(), e.cfg.Clock, time.Duration(e.cfg.LeaseTTLSeconds)*time.Second)
		token, acquired, err := cm.AcquireOrSteal(ctx, input.CampaignID, input.ActorID)
		if err != nil {
			return err
		}
		if !acquired {
			return newTurnBusy(ReasonTurnInflight)
		}

		player, err := u.Players().UpsertLazy(ctx, input.CampaignID, input.ActorID)
		if err != nil {
			return err
		}

		recent, err := u.Turns().Recent(ctx, input.CampaignID, recentTurnsWindow)
		if err != nil {
			return err
		}

		now := e.cfg.Clock.Now()
		out = phaseAOutput{
			context:    buildTurnContext(campaign, player, input, recent, now),
			claimToken: token,
			campaignID: input.CampaignID,
			actorID:    input.ActorID,
		}
		return nil
	})

	return out, err
}
