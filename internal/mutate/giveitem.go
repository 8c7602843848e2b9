package mutate

import (
	"context"
	"strings"

	"github.com/arcfable/campaignforge/ports"
)

// GiveItemIssue enumerates the non-fatal outcomes of NormalizeGiveItem.
type GiveItemIssue string

const (
	GiveItemIssueNone             GiveItemIssue = ""
	GiveItemIssueMissingItem      GiveItemIssue = "missing_item"
	GiveItemIssueUnresolvedTarget GiveItemIssue = "unresolved_target"
)

// NormalizeGiveItem validates and resolves an LLM-provided give_item
// instruction, exactly as normalize.py::normalize_give_item:
//   - an empty item name yields (nil, missing_item);
//   - if ToActorID is absent but a Discord mention is present and a resolver
//     is given, the resolver is consulted;
//   - if the target is still unresolved, the instruction is still returned
//     (non-nil) alongside unresolved_target — the engine treats this as
//     non-fatal and emits an outbox event rather than failing the turn.
func NormalizeGiveItem(ctx context.Context, raw *ports.GiveItemInstruction, resolver ports.ActorResolverPort) (*ports.GiveItemInstruction, GiveItemIssue) {
	if raw == nil {
		return nil, GiveItemIssueNone
	}

	item := strings.TrimSpace(raw.Item)
	if item == "" {
		return nil, GiveItemIssueMissingItem
	}

	out := &ports.GiveItemInstruction{Item: item}
	if raw.ToActorID != nil {
		if id := strings.TrimSpace(*raw.ToActorID); id != "" {
			out.ToActorID = &id
		}
	}
	if raw.ToDiscordMention != nil {
		if m := strings.TrimSpace(*raw.ToDiscordMention); m != "" {
			out.ToDiscordMention = &m
		}
	}

	if out.ToActorID == nil && out.ToDiscordMention != nil && resolver != nil {
		if actorID, ok, err := resolver.ResolveDiscordMention(ctx, *out.ToDiscordMention); err == nil && ok {
			out.ToActorID = &actorID
		}
	}

	if out.ToActorID == nil {
		return out, GiveItemIssueUnresolvedTarget
	}
	return out, GiveItemIssueNone
}
