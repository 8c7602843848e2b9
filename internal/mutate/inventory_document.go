package mutate

import "github.com/arcfable/campaignforge/internal/store"

// InventoryFromDocument reads and normalizes a player state document's
// "inventory" field into typed items, skipping malformed entries.
func InventoryFromDocument(state store.Document) []InventoryItem {
	raw, _ := state["inventory"].([]any)
	out := make([]InventoryItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		origin, _ := m["origin"].(string)
		out = append(out, InventoryItem{Name: name, Origin: origin})
	}
	return out
}

// InventoryToDocument writes typed items back into the []any shape a
// Document's jsonb "inventory" field expects.
func InventoryToDocument(items []InventoryItem) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = map[string]any{"name": it.Name, "origin": it.Origin}
	}
	return out
}
