package mutate

import "github.com/arcfable/campaignforge/internal/store"

// calendarEventsFromState reads and normalizes the existing state.calendar
// list, discarding entries that fail validation (no name).
func calendarEventsFromState(state store.Document, currentDay, currentHour int) []CalendarEvent {
	raw, _ := state["calendar"].([]any)
	out := make([]CalendarEvent, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ev, ok := normalizeEvent(m, currentDay, currentHour)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func calendarEventsToDocuments(events []CalendarEvent) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		m := map[string]any{
			"name":        ev.Name,
			"fire_day":    ev.FireDay,
			"description": ev.Description,
		}
		if ev.CreatedDay != nil {
			m["created_day"] = *ev.CreatedDay
		}
		if ev.CreatedHour != nil {
			m["created_hour"] = *ev.CreatedHour
		}
		out[i] = m
	}
	return out
}

// gameTimeDayHour reads state.game_time.day/hour, defaulting to day 1 /
// hour 8 when absent or non-numeric — the same fallback
// engine.py::_calendar_resolve_fire_day uses (`hour = 8` on a missing or
// unparseable game_time.hour).
func gameTimeDayHour(state store.Document) (day, hour int) {
	gt, _ := state["game_time"].(map[string]any)
	day = 1
	hour = 8
	if gt == nil {
		return
	}
	if v, ok := asInt(gt["day"]); ok {
		day = v
	}
	if v, ok := asInt(gt["hour"]); ok {
		hour = v
	}
	return
}

// ApplyStateUpdate applies the full Phase C state-update sequence for
// campaign.state (spec §4.2 step 4, first two bullets): the non-calendar
// portion of state_update is shallow-merged first, then calendar_update is
// applied on top of the result — calendar_update itself is never merged as a
// literal key into state.
func ApplyStateUpdate(state store.Document, stateUpdate store.Document) store.Document {
	calendarUpdate, hasCalendarUpdate := stateUpdate["calendar_update"].(map[string]any)

	rest := stateUpdate.Clone()
	delete(rest, "calendar_update")
	out := ApplyPatch(state, rest)

	if hasCalendarUpdate {
		day, hour := gameTimeDayHour(out)
		existing := calendarEventsFromState(out, day, hour)
		updated := ApplyCalendarUpdate(existing, calendarUpdate, day, hour)
		out["calendar"] = calendarEventsToDocuments(updated)
	}
	return out
}
