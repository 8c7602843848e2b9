package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arcfable/campaignforge/internal/claim"
	"github.com/arcfable/campaignforge/internal/mutate"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
	"github.com/arcfable/campaignforge/ports"
	"github.com/google/uuid"
)

const defaultNarration = "The world shifts, but nothing clear emerges."

// timerMinDelay is spec §4.2 step 10 / §5's "Timeouts" minimum store-level
// timer delay.
const timerMinDelay = 30 * time.Second

// phaseC is spec §4.2's "Phase C — apply": it validates the claim token in
// its own short transaction, then runs one transaction that re-checks the
// row-version, applies every patch, records turns, schedules a timer and/or
// scene-image outbox event if requested, snapshots the world, and
// CAS-commits the campaign. The token check is not repeated inside the
// apply transaction. A returned *staleClaimError means phaseC has already
// released the claim best-effort and the caller may retry with a fresh
// token; any other error is an unexpected failure (spec §7 "Unexpected").
func (e *Engine) phaseC(ctx context.Context, input ResolveTurnInput, phaseAOut phaseAOutput, llm ports.LLMTurnOutput) (ResolveTurnResult, error) {
	var result ResolveTurnResult

	valid, err := e.validateTokenCommitted(ctx, phaseAOut)
	if err != nil {
		return result, err
	}
	if !valid {
		e.releaseBestEffort(ctx, phaseAOut)
		return result, newStaleClaim(ReasonClaimInvalid)
	}

	var interruptedTimerID string

	runErr := uow.Run(ctx, e.cfg.UOWFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		campaign, err := u.Campaigns().Get(ctx, input.CampaignID)
		if err != nil {
			if err == store.ErrNotFound {
				return newStaleClaim(ReasonMissingCampaignOrPlayer)
			}
			return err
		}
		player, err := u.Players().GetByCampaignActor(ctx, input.CampaignID, input.ActorID)
		if err != nil {
			if err == store.ErrNotFound {
				return newStaleClaim(ReasonMissingCampaignOrPlayer)
			}
			return err
		}
		if campaign.RowVersion != phaseAOut.context.StartRowVersion {
			return newStaleClaim(ReasonRowVersionChanged)
		}

		now := e.cfg.Clock.Now()

		// Interruption (spec §4.5 "Interruption"): an ordinary player turn
		// cancels any pending interruptible timer and leaves behind an
		// auxiliary system narrator turn describing the aversion. Turns
		// recorded on the scheduler's own behalf (record_player_turn=false)
		// never interrupt — a timer cannot interrupt itself.
		if input.RecordPlayerTurn {
			active, err := u.Timers().GetActiveForCampaign(ctx, input.CampaignID)
			if err != nil && err != store.ErrNotFound {
				return err
			}
			if active != nil && active.Interruptible {
				if _, err := u.Timers().CancelActive(ctx, input.CampaignID, now); err != nil {
					return err
				}
				aversion := active.EventText
				if active.InterruptAction != nil && strings.TrimSpace(*active.InterruptAction) != "" {
					aversion = *active.InterruptAction
				}
				if _, err := u.Turns().Add(ctx, &store.Turn{
					CampaignID: input.CampaignID,
					SessionID:  input.SessionID,
					Kind:       store.TurnKindNarrator,
					Content:    fmt.Sprintf("[SYSTEM EVENT - ABORTED]: %s", aversion),
					Meta:       store.Document{},
					CreatedAt:  now,
				}); err != nil {
					return err
				}
				interruptedTimerID = active.ID
				slog.With("campaign_id", input.CampaignID, "claim_token", phaseAOut.claimToken).
					Info("interruptible timer cancelled by player turn", "timer_id", active.ID)
			}
		}

		narration := strings.TrimSpace(llm.Narration)
		if narration == "" {
			narration = defaultNarration
		}

		inventoryBefore := mutate.InventoryFromDocument(player.State)

		newState := mutate.ApplyStateUpdate(campaign.State, store.Document(llm.StateUpdate))
		newCharacters := mutate.ApplyPatch(campaign.Characters, store.Document(llm.CharacterUpdates))
		player.State = applyPlayerStateUpdate(player.State, store.Document(llm.PlayerStateUpdate), narration)

		newSummary := campaign.Summary
		if llm.SummaryUpdate != nil {
			newSummary = mutate.AppendSummary(campaign.Summary, *llm.SummaryUpdate)
		}

		instruction, issue := mutate.NormalizeGiveItem(ctx, llm.GiveItem, e.resolver)
		if instruction != nil && issue == mutate.GiveItemIssueNone {
			if err := e.applyGiveItemTransfer(ctx, u, input.CampaignID, input.ActorID, player, instruction); err != nil {
				return err
			}
		} else if instruction == nil && issue == mutate.GiveItemIssueNone {
			// The LLM sent no explicit give_item; fall back to spec §4.4's
			// narration heuristic before giving up on the transfer entirely.
			mentioned, err := e.mentionedOtherActorIDs(ctx, u, input.CampaignID, input.ActorID, narration)
			if err != nil {
				return err
			}
			inventoryAfter := mutate.InventoryFromDocument(player.State)
			if inferred := mutate.BuildInferredGiveItem(inventoryBefore, inventoryAfter, narration, mentioned); inferred != nil {
				if err := e.applyInferredGiveItemTransfer(ctx, u, input.CampaignID, *inferred.ToActorID, inferred.Item); err != nil {
					return err
				}
				instruction = inferred
			}
		}

		player.XP += maxInt(0, llm.XPAwarded)
		player.LastActiveAt = &now
		if err := u.Players().Update(ctx, player); err != nil {
			return err
		}

		if input.RecordPlayerTurn {
			if _, err := u.Turns().Add(ctx, &store.Turn{
				CampaignID: input.CampaignID,
				SessionID:  input.SessionID,
				ActorID:    &input.ActorID,
				Kind:       store.TurnKindPlayer,
				Content:    input.Action,
				Meta:       store.Document{},
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}

		narratorTurnID, err := u.Turns().Add(ctx, &store.Turn{
			CampaignID: input.CampaignID,
			SessionID:  input.SessionID,
			Kind:       store.TurnKindNarrator,
			Content:    narration,
			Meta:       store.Document{},
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		if instruction != nil && issue == mutate.GiveItemIssueUnresolvedTarget {
			if err := u.Outbox().Add(ctx, &store.OutboxEvent{
				CampaignID:     input.CampaignID,
				SessionScope:   store.NoneSessionScope,
				EventType:      "give_item_unresolved",
				IdempotencyKey: fmt.Sprintf("give_item:%d", narratorTurnID),
				Payload:        giveItemPayload(instruction),
				Status:         "pending",
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		var appliedTimer *ports.TimerInstruction
		if input.AllowTimerInstruction && llm.TimerInstruction != nil {
			ti := llm.TimerInstruction
			delay := time.Duration(ti.DelaySeconds) * time.Second
			if delay < timerMinDelay {
				delay = timerMinDelay
			}
			timerID := uuid.New().String()
			if err := u.Timers().Schedule(ctx, &store.Timer{
				ID:              timerID,
				CampaignID:      input.CampaignID,
				SessionID:       input.SessionID,
				Status:          store.TimerScheduledUnbound,
				EventText:       ti.EventText,
				Interruptible:   ti.Interruptible,
				InterruptAction: ti.InterruptAction,
				DueAt:           now.Add(delay),
				Meta:            store.Document{},
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			if err := u.Outbox().Add(ctx, &store.OutboxEvent{
				CampaignID:     input.CampaignID,
				SessionScope:   store.NoneSessionScope,
				EventType:      "timer_scheduled",
				IdempotencyKey: timerID,
				Payload:        store.Document{"timer_id": timerID, "event_text": ti.EventText},
				Status:         "pending",
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			appliedTimer = ti
		}

		var sceneImagePrompt *string
		if llm.SceneImagePrompt != nil && strings.TrimSpace(*llm.SceneImagePrompt) != "" {
			key := sceneImageIdempotencyKey(narratorTurnID, newState)
			if err := u.Outbox().Add(ctx, &store.OutboxEvent{
				CampaignID:     input.CampaignID,
				SessionScope:   store.NoneSessionScope,
				EventType:      "scene_image_requested",
				IdempotencyKey: key,
				Payload:        store.Document{"prompt": *llm.SceneImagePrompt},
				Status:         "pending",
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			sceneImagePrompt = llm.SceneImagePrompt
		}

		allPlayers, err := u.Players().ListByCampaign(ctx, input.CampaignID)
		if err != nil {
			return err
		}
		snapshotPlayers := make([]store.PlayerSnapshot, len(allPlayers))
		for i, p := range allPlayers {
			snapshotPlayers[i] = store.PlayerSnapshot{
				ActorID:    p.ActorID,
				Level:      p.Level,
				XP:         p.XP,
				Attributes: p.Attributes,
				State:      p.State,
			}
		}
		if err := u.Snapshots().Add(ctx, &store.Snapshot{
			ID:                    uuid.New().String(),
			TurnID:                narratorTurnID,
			CampaignID:            input.CampaignID,
			CampaignState:         newState,
			CampaignCharacters:    newCharacters,
			CampaignSummary:       newSummary,
			CampaignLastNarration: narration,
			Players:               snapshotPlayers,
			CreatedAt:             now,
		}); err != nil {
			return err
		}

		watermark := narratorTurnID
		if err := u.Campaigns().CASApplyUpdate(ctx, input.CampaignID, phaseAOut.context.StartRowVersion, store.CampaignUpdate{
			Summary:                newSummary,
			State:                  newState,
			Characters:             newCharacters,
			LastNarration:          narration,
			MemoryVisibleMaxTurnID: &watermark,
		}); err != nil {
			if err == store.ErrConcurrentModification {
				return newStaleClaim(ReasonCASFailed)
			}
			return err
		}

		cm := claim.New(u.Inflight(), e.cfg.Clock, time.Duration(e.cfg.LeaseTTLSeconds)*time.Second)
		if err := cm.Release(ctx, input.CampaignID, input.ActorID, phaseAOut.claimToken); err != nil {
			return err
		}

		result = ResolveTurnResult{
			Status:           StatusOK,
			Narration:        narration,
			SceneImagePrompt: sceneImagePrompt,
			TimerInstruction: appliedTimer,
			GiveItem:         instruction,
			NarratorTurnID:   narratorTurnID,
		}
		return nil
	})

	if runErr == nil && interruptedTimerID != "" && e.cfg.Interrupter != nil {
		e.cfg.Interrupter.CancelTimer(input.CampaignID)
	}

	if runErr != nil {
		if reason, ok := asStaleClaim(runErr); ok {
			e.releaseBestEffort(ctx, phaseAOut)
			return ResolveTurnResult{}, newStaleClaim(reason)
		}
		return ResolveTurnResult{}, runErr
	}
	return result, nil
}

func (e *Engine) validateTokenCommitted(ctx context.Context, phaseAOut phaseAOutput) (bool, error) {
	var valid bool
	err := uow.Run(ctx, e.cfg.UOWFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		cm := claim.New(u.Inflight(), e.cfg.Clock, time.Duration(e.cfg.LeaseTTLSeconds)*time.Second)
		ok, err := cm.ValidateToken(ctx, phaseAOut.campaignID, phaseAOut.actorID, phaseAOut.claimToken)
		if err != nil {
			return err
		}
		valid = ok
		return nil
	})
	return valid, err
}

func giveItemPayload(instruction *ports.GiveItemInstruction) store.Document {
	payload := store.Document{"item": instruction.Item}
	if instruction.ToDiscordMention != nil {
		payload["to_discord_mention"] = *instruction.ToDiscordMention
	}
	if instruction.ToActorID != nil {
		payload["to_actor_id"] = *instruction.ToActorID
	}
	return payload
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// applyPlayerStateUpdate shallow-merges update into state, but first routes
// update's inventory_add/inventory_remove arrays (spec §4.3 "Inventory
// normalization") through mutate.ApplyInventoryDelta rather than letting them
// land as dead top-level keys: a newly-added item's origin defaults to the
// first sentence of narration, up to 120 characters.
func applyPlayerStateUpdate(state, update store.Document, narration string) store.Document {
	add, hasAdd := update["inventory_add"]
	remove, hasRemove := update["inventory_remove"]
	if !hasAdd && !hasRemove {
		return mutate.ApplyPatch(state, update)
	}

	rest := update.Clone()
	delete(rest, "inventory_add")
	delete(rest, "inventory_remove")
	out := mutate.ApplyPatch(state, rest)

	existing := mutate.InventoryFromDocument(out)
	delta := mutate.ApplyInventoryDelta(existing, stringSlice(add), stringSlice(remove), mutate.FirstSentence(narration, inventoryAddOriginMaxChars))
	out["inventory"] = mutate.InventoryToDocument(delta)
	return out
}

// inventoryAddOriginMaxChars is spec §4.3's "up to 120 characters" bound on
// an inventory_add entry's default origin.
const inventoryAddOriginMaxChars = 120

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
