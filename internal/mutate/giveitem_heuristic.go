package mutate

import (
	"regexp"
	"strings"

	"github.com/arcfable/campaignforge/ports"
)

var (
	giveVerbPattern    = regexp.MustCompile(`(?i)\b(gives?|hands?|tosses?|passes?)\b`)
	refusalPhrasePattern = regexp.MustCompile(`(?i)\b(refuses?|declines?|won't|will not|keeps?\s+(it|the))\b`)
)

// InferGiveItem is the heuristic fallback of spec §4.4: when the LLM sent no
// explicit give_item, but the source actor's inventory shrank by exactly one
// item and the narration names a single other actor with a giving verb and
// no refusal phrase, synthesize the transfer. Returns ok=false when the
// heuristic does not confidently apply — per spec §9's Open Question, a
// caller may choose to skip rather than infer; this function only supplies
// the inference, the decision to use it is the turn engine's.
func InferGiveItem(before, after []InventoryItem, narration string, otherMentionedActorIDs []string) (item string, ok bool) {
	if len(otherMentionedActorIDs) != 1 {
		return "", false
	}
	if !giveVerbPattern.MatchString(narration) {
		return "", false
	}
	if refusalPhrasePattern.MatchString(narration) {
		return "", false
	}

	removed := diffRemoved(before, after)
	if len(removed) != 1 || len(after) != len(before)-1 {
		return "", false
	}
	return removed[0].Name, true
}

// diffRemoved returns the entries present in before but not in after,
// matched case-insensitively by name.
func diffRemoved(before, after []InventoryItem) []InventoryItem {
	stillPresent := make(map[string]bool, len(after))
	for _, it := range after {
		stillPresent[strings.ToLower(it.Name)] = true
	}
	var removed []InventoryItem
	for _, it := range before {
		if !stillPresent[strings.ToLower(it.Name)] {
			removed = append(removed, it)
		}
	}
	return removed
}

// BuildInferredGiveItem wraps InferGiveItem's result into a
// ports.GiveItemInstruction targeting the single mentioned actor.
func BuildInferredGiveItem(before, after []InventoryItem, narration string, otherMentionedActorIDs []string) *ports.GiveItemInstruction {
	item, ok := InferGiveItem(before, after, narration, otherMentionedActorIDs)
	if !ok {
		return nil
	}
	target := otherMentionedActorIDs[0]
	return &ports.GiveItemInstruction{Item: item, ToActorID: &target}
}
