package turn

import (
	"fmt"
	"strings"

	"github.com/arcfable/campaignforge/internal/store"
)

const roomKeyMaxChars = 120

// roomKeyFromState derives the idempotency-key room component for a
// scene_image_requested outbox event, exactly as
// engine.py::_room_key_from_state: check room_id, then location, then
// room_title, then room_summary, in that order; lowercase, trim, truncate to
// 120 characters; default "unknown-room" if none are usable strings.
func roomKeyFromState(state store.Document) string {
	for _, key := range []string{"room_id", "location", "room_title", "room_summary"} {
		if v, ok := state[key].(string); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				if len(v) > roomKeyMaxChars {
					v = v[:roomKeyMaxChars]
				}
				return v
			}
		}
	}
	return "unknown-room"
}

func sceneImageIdempotencyKey(narratorTurnID int64, state store.Document) string {
	return fmt.Sprintf("scene_image:%d:%s", narratorTurnID, roomKeyFromState(state))
}
