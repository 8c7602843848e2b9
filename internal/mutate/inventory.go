package mutate

import "strings"

const inventoryOriginMaxChars = 120

// FirstSentence returns the first sentence of text (split on '.', '!', '?'),
// truncated to maxChars — the default origin for inventory_add entries that
// don't carry one explicitly (spec §4.3 "Inventory normalization").
func FirstSentence(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	end := len(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end = i + 1
			break
		}
	}
	sentence := strings.TrimSpace(text[:end])
	if len(sentence) > maxChars {
		sentence = sentence[:maxChars]
	}
	return sentence
}

// DedupInventory removes case-insensitive duplicate names, keeping the first
// occurrence of each.
func DedupInventory(items []InventoryItem) []InventoryItem {
	seen := make(map[string]bool, len(items))
	out := make([]InventoryItem, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(it.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// InventoryItem is one {name, origin} inventory entry, the same shape as
// store.InventoryItem; InventoryFromDocument and InventoryToDocument convert
// between it and a player's state document.
type InventoryItem struct {
	Name   string
	Origin string
}

// ApplyInventoryDelta applies add/remove name lists to an existing inventory,
// defaulting a newly-added item's origin to defaultOrigin when the add list
// carries plain names rather than {name, origin} pairs (spec §4.3). Removal
// is case-insensitive and removes at most one matching entry per name.
func ApplyInventoryDelta(existing []InventoryItem, add, remove []string, defaultOrigin string) []InventoryItem {
	out := make([]InventoryItem, len(existing))
	copy(out, existing)

	for _, name := range remove {
		key := strings.ToLower(strings.TrimSpace(name))
		for i, it := range out {
			if strings.ToLower(it.Name) == key {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
	}

	present := make(map[string]bool, len(out))
	for _, it := range out {
		present[strings.ToLower(it.Name)] = true
	}
	for _, name := range add {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if present[key] {
			continue
		}
		present[key] = true
		out = append(out, InventoryItem{Name: name, Origin: defaultOrigin})
	}

	return DedupInventory(out)
}
