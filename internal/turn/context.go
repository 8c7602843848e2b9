package turn

import (
	"time"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/ports"
)

// recentTurnsWindow is the "recent 24 turns" constant of spec §4.2 Phase A
// step 4 — a core-visible constant, not a load-bearing invariant (spec §9).
const recentTurnsWindow = 24

func buildTurnContext(campaign *store.Campaign, player *store.Player, input ResolveTurnInput, recent []store.Turn, now time.Time) ports.TurnContext {
	entries := make([]ports.TurnContextEntry, len(recent))
	for i, t := range recent {
		entries[i] = ports.TurnContextEntry{Kind: string(t.Kind), Content: t.Content}
	}
	return ports.TurnContext{
		CampaignID:         campaign.ID,
		ActorID:            input.ActorID,
		SessionID:          input.SessionID,
		Action:             input.Action,
		CampaignState:      map[string]any(campaign.State),
		CampaignSummary:    campaign.Summary,
		CampaignCharacters: map[string]any(campaign.Characters),
		PlayerState:        map[string]any(player.State),
		PlayerLevel:        player.Level,
		PlayerXP:           player.XP,
		RecentTurns:        entries,
		StartRowVersion:    campaign.RowVersion,
		Now:                now.Unix(),
	}
}
