package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcfable/campaignforge/internal/mutate"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
	"github.com/arcfable/campaignforge/ports"
)

// applyGiveItemTransfer performs the actual inventory move for a resolved
// give_item instruction (spec §4.4): pop the first matching source entry,
// append it to the target's inventory if not already present, no-op if
// target equals source or the item isn't found in the source's inventory.
// sourcePlayer's State is mutated in place; the caller still owns writing it
// back via Players().Update.
func (e *Engine) applyGiveItemTransfer(ctx context.Context, u uow.UnitOfWork, campaignID, sourceActorID string, sourcePlayer *store.Player, instruction *ports.GiveItemInstruction) error {
	targetActorID := *instruction.ToActorID
	if targetActorID == sourceActorID {
		return nil
	}

	sourceInventory := mutate.InventoryFromDocument(sourcePlayer.State)
	remaining, ok := popInventoryItem(sourceInventory, instruction.Item)
	if !ok {
		return nil
	}
	if sourcePlayer.State == nil {
		sourcePlayer.State = store.Document{}
	}
	sourcePlayer.State["inventory"] = mutate.InventoryToDocument(remaining)

	targetPlayer, err := u.Players().UpsertLazy(ctx, campaignID, targetActorID)
	if err != nil {
		return err
	}
	targetInventory := mutate.InventoryFromDocument(targetPlayer.State)
	if !inventoryContains(targetInventory, instruction.Item) {
		targetInventory = append(targetInventory, mutate.InventoryItem{
			Name:   instruction.Item,
			Origin: fmt.Sprintf("Received from %s", sourceActorID),
		})
	}
	if targetPlayer.State == nil {
		targetPlayer.State = store.Document{}
	}
	targetPlayer.State["inventory"] = mutate.InventoryToDocument(targetInventory)

	return u.Players().Update(ctx, targetPlayer)
}

// popInventoryItem removes the first entry whose name matches item
// case-insensitively, returning the remaining list and whether a match was
// found.
func popInventoryItem(items []mutate.InventoryItem, item string) ([]mutate.InventoryItem, bool) {
	key := strings.ToLower(item)
	for i, it := range items {
		if strings.ToLower(it.Name) == key {
			out := make([]mutate.InventoryItem, 0, len(items)-1)
			out = append(out, items[:i]...)
			out = append(out, items[i+1:]...)
			return out, true
		}
	}
	return items, false
}

func inventoryContains(items []mutate.InventoryItem, item string) bool {
	key := strings.ToLower(item)
	for _, it := range items {
		if strings.ToLower(it.Name) == key {
			return true
		}
	}
	return false
}

// applyInferredGiveItemTransfer completes a mutate.InferGiveItem match (spec
// §4.4 "Heuristic fallback"): the source actor's own player_state_update
// already dropped the item from their inventory (that shrink is what made
// the heuristic fire), so unlike applyGiveItemTransfer this only needs to add
// it to the target's inventory.
func (e *Engine) applyInferredGiveItemTransfer(ctx context.Context, u uow.UnitOfWork, campaignID, targetActorID, item string) error {
	targetPlayer, err := u.Players().UpsertLazy(ctx, campaignID, targetActorID)
	if err != nil {
		return err
	}
	targetInventory := mutate.InventoryFromDocument(targetPlayer.State)
	if !inventoryContains(targetInventory, item) {
		targetInventory = append(targetInventory, mutate.InventoryItem{Name: item, Origin: "Received from another player"})
	}
	if targetPlayer.State == nil {
		targetPlayer.State = store.Document{}
	}
	targetPlayer.State["inventory"] = mutate.InventoryToDocument(targetInventory)
	return u.Players().Update(ctx, targetPlayer)
}

// mentionedOtherActorIDs returns the ids of every other campaign player whose
// actor display name appears in narration, the "narration mentions a single
// other actor" leg of spec §4.4's heuristic fallback.
func (e *Engine) mentionedOtherActorIDs(ctx context.Context, u uow.UnitOfWork, campaignID, sourceActorID, narration string) ([]string, error) {
	players, err := u.Players().ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	lowerNarration := strings.ToLower(narration)
	var mentioned []string
	for _, p := range players {
		if p.ActorID == sourceActorID {
			continue
		}
		actor, err := u.Actors().Get(ctx, p.ActorID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, err
		}
		if actor.DisplayName == "" {
			continue
		}
		if strings.Contains(lowerNarration, strings.ToLower(actor.DisplayName)) {
			mentioned = append(mentioned, p.ActorID)
		}
	}
	return mentioned, nil
}
