// Package mutate implements StateMutator (spec §4.3): shallow JSON-document
// patching, calendar normalization, inventory deltas, and give-item
// transfer normalization. Ported from
// original_source/src/text_game_engine/core/engine.py (calendar methods)
// and original_source/src/text_game_engine/core/normalize.py (apply_patch,
// normalize_give_item).
package mutate

import "github.com/arcfable/campaignforge/internal/store"

// ApplyPatch shallow-merges patch into base. A key whose patch value is nil
// removes the key from the result; any other value replaces it wholesale —
// nested objects are never deep-merged (spec §4.3, normalize.py::apply_patch).
func ApplyPatch(base, patch store.Document) store.Document {
	out := base.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
