package mutate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstSentence_SplitsOnTerminator(t *testing.T) {
	assert.Equal(t, "You found a torch.", FirstSentence("You found a torch. It smells of pitch.", 120))
}

func TestFirstSentence_TruncatesLongSentence(t *testing.T) {
	long := strings.Repeat("a", 200)
	out := FirstSentence(long, 50)
	assert.Len(t, out, 50)
}

func TestFirstSentence_NoTerminatorReturnsWholeTrimmedText(t *testing.T) {
	assert.Equal(t, "no terminator here", FirstSentence("  no terminator here  ", 120))
}

func TestDedupInventory_KeepsFirstOccurrenceCaseInsensitive(t *testing.T) {
	items := []InventoryItem{{Name: "Torch"}, {Name: "torch"}, {Name: "Rope"}}
	out := DedupInventory(items)
	assert.Len(t, out, 2)
	assert.Equal(t, "Torch", out[0].Name)
	assert.Equal(t, "Rope", out[1].Name)
}

func TestApplyInventoryDelta_AddsAndRemoves(t *testing.T) {
	existing := []InventoryItem{{Name: "torch", Origin: "found in cave"}}
	out := ApplyInventoryDelta(existing, []string{"rope"}, []string{"torch"}, "given by narrator")

	assert.Len(t, out, 1)
	assert.Equal(t, "rope", out[0].Name)
	assert.Equal(t, "given by narrator", out[0].Origin)
}

func TestApplyInventoryDelta_RemoveIsCaseInsensitiveAndRemovesOnlyOneMatch(t *testing.T) {
	existing := []InventoryItem{{Name: "Torch"}, {Name: "torch"}}
	out := ApplyInventoryDelta(existing, nil, []string{"TORCH"}, "")
	assert.Len(t, out, 1)
}

func TestApplyInventoryDelta_AddSkipsBlankAndExistingNames(t *testing.T) {
	existing := []InventoryItem{{Name: "torch"}}
	out := ApplyInventoryDelta(existing, []string{"  ", "Torch", "rope"}, nil, "origin")
	assert.Len(t, out, 2)
	names := []string{out[0].Name, out[1].Name}
	assert.ElementsMatch(t, []string{"torch", "rope"}, names)
}

func TestInventoryFromDocumentAndToDocument_RoundTrip(t *testing.T) {
	doc := map[string]any{
		"inventory": []any{
			map[string]any{"name": "torch", "origin": "found"},
			map[string]any{"name": "rope"},
			"not-an-object",
			map[string]any{"origin": "no name, skipped"},
		},
	}
	items := InventoryFromDocument(doc)
	assert.Len(t, items, 2)
	assert.Equal(t, "torch", items[0].Name)
	assert.Equal(t, "found", items[0].Origin)

	back := InventoryToDocument(items)
	assert.Len(t, back, 2)
	m, ok := back[0].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "torch", m["name"])
}
