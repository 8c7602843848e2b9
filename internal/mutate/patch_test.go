package mutate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcfable/campaignforge/internal/store"
)

func TestApplyPatch_MergesAndOverwritesKeys(t *testing.T) {
	base := store.Document{"room": "tavern", "gold": 10}
	patch := store.Document{"gold": 15, "weather": "rain"}
	out := ApplyPatch(base, patch)

	assert.Equal(t, "tavern", out["room"])
	assert.Equal(t, 15, out["gold"])
	assert.Equal(t, "rain", out["weather"])
}

func TestApplyPatch_NilValueRemovesKey(t *testing.T) {
	base := store.Document{"room": "tavern", "flag": true}
	patch := store.Document{"flag": nil}
	out := ApplyPatch(base, patch)

	_, present := out["flag"]
	assert.False(t, present)
	assert.Equal(t, "tavern", out["room"])
}

func TestApplyPatch_NestedObjectsReplacedWholesaleNotMerged(t *testing.T) {
	base := store.Document{"npc": map[string]any{"name": "Garrick", "mood": "wary"}}
	patch := store.Document{"npc": map[string]any{"mood": "friendly"}}
	out := ApplyPatch(base, patch)

	npc, ok := out["npc"].(map[string]any)
	assert.True(t, ok)
	_, hasName := npc["name"]
	assert.False(t, hasName, "nested objects must be replaced wholesale, not deep-merged")
	assert.Equal(t, "friendly", npc["mood"])
}

func TestApplyPatch_DoesNotMutateBase(t *testing.T) {
	base := store.Document{"gold": 10}
	_ = ApplyPatch(base, store.Document{"gold": 99})
	assert.Equal(t, 10, base["gold"])
}
