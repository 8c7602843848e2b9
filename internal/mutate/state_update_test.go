package mutate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfable/campaignforge/internal/store"
)

func TestApplyStateUpdate_MergesNonCalendarFieldsFirst(t *testing.T) {
	state := store.Document{"weather": "clear", "game_time": map[string]any{"day": 3, "hour": 9}}
	update := store.Document{"weather": "storm"}
	out := ApplyStateUpdate(state, update)
	assert.Equal(t, "storm", out["weather"])
}

func TestApplyStateUpdate_CalendarUpdateNeverMergedAsLiteralKey(t *testing.T) {
	state := store.Document{"game_time": map[string]any{"day": 1, "hour": 0}}
	update := store.Document{
		"calendar_update": map[string]any{
			"add": []any{map[string]any{"name": "Eclipse", "fire_day": 5}},
		},
	}
	out := ApplyStateUpdate(state, update)

	_, hasLiteralKey := out["calendar_update"]
	assert.False(t, hasLiteralKey, "calendar_update must never appear as a literal state key")

	calendar, ok := out["calendar"].([]any)
	assert.True(t, ok)
	assert.Len(t, calendar, 1)
}

func TestApplyStateUpdate_CalendarAppliedOnTopOfMergedGameTime(t *testing.T) {
	state := store.Document{"game_time": map[string]any{"day": 1, "hour": 0}}
	update := store.Document{
		"game_time":       map[string]any{"day": 10, "hour": 22},
		"calendar_update": map[string]any{"add": []any{map[string]any{"name": "Siege", "time_remaining": 3, "time_unit": "hours"}}},
	}
	out := ApplyStateUpdate(state, update)

	calendar, ok := out["calendar"].([]any)
	assert.True(t, ok)
	assert.Len(t, calendar, 1)
	entry := calendar[0].(map[string]any)
	// day 10, hour 22 + 3 hours = hour 25 -> day 11
	assert.Equal(t, 11, entry["fire_day"])
}

func TestApplyStateUpdate_MissingGameTimeDefaultsToDayOneHourEight(t *testing.T) {
	state := store.Document{}
	update := store.Document{
		"calendar_update": map[string]any{"add": []any{map[string]any{"name": "Dawn Watch", "time_remaining": 20, "time_unit": "hours"}}},
	}
	out := ApplyStateUpdate(state, update)

	calendar, ok := out["calendar"].([]any)
	assert.True(t, ok)
	require.Len(t, calendar, 1)
	entry := calendar[0].(map[string]any)
	// day 1, hour 8 (the default) + 20 hours = hour 28 -> day 2.
	assert.Equal(t, 2, entry["fire_day"])
}

func TestApplyStateUpdate_NoCalendarUpdateLeavesExistingCalendarUntouched(t *testing.T) {
	state := store.Document{
		"game_time": map[string]any{"day": 1, "hour": 0},
		"calendar":  []any{map[string]any{"name": "Harvest", "fire_day": 9}},
	}
	update := store.Document{"weather": "fog"}
	out := ApplyStateUpdate(state, update)

	calendar, ok := out["calendar"].([]any)
	assert.True(t, ok)
	assert.Len(t, calendar, 1)
}
