package mutate

import "strings"

// CalendarEvent is one entry of campaign state.calendar.
type CalendarEvent struct {
	Name        string
	FireDay     int
	Description string
	CreatedDay  *int
	CreatedHour *int
}

const (
	calendarDescriptionMaxChars = 200
	calendarMaxEntries          = 10
)

// ResolveFireDay translates a relative time_remaining/time_unit pair into an
// absolute fire_day, exactly as
// engine.py::GameEngine._calendar_resolve_fire_day. Day is clamped to >= 1,
// hour to [0, 23] before computing.
func ResolveFireDay(currentDay, currentHour, timeRemaining int, timeUnit string) int {
	day := currentDay
	if day < 1 {
		day = 1
	}
	hour := currentHour
	if hour < 0 {
		hour = 0
	} else if hour > 23 {
		hour = 23
	}

	var fireDay int
	if strings.HasPrefix(strings.ToLower(timeUnit), "hour") {
		fireDay = day + (hour+timeRemaining)/24
	} else {
		fireDay = day + timeRemaining
	}
	if fireDay < 1 {
		fireDay = 1
	}
	return fireDay
}

// normalizeEvent validates and normalizes one raw calendar entry (either an
// existing state.calendar entry or a calendar_update.add entry), exactly as
// engine.py::GameEngine._calendar_normalize_event. ok is false if raw has no
// non-empty "name".
func normalizeEvent(raw map[string]any, currentDay, currentHour int) (CalendarEvent, bool) {
	name, _ := raw["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return CalendarEvent{}, false
	}

	var fireDay int
	if explicit, ok := asInt(raw["fire_day"]); ok {
		fireDay = explicit
		if fireDay < 1 {
			fireDay = 1
		}
	} else {
		remaining := 1
		if v, ok := asInt(raw["time_remaining"]); ok {
			remaining = v
		}
		unit := "days"
		if u, ok := raw["time_unit"].(string); ok && u != "" {
			unit = u
		}
		fireDay = ResolveFireDay(currentDay, currentHour, remaining, unit)
	}

	description, _ := raw["description"].(string)
	if len(description) > calendarDescriptionMaxChars {
		description = description[:calendarDescriptionMaxChars]
	}

	ev := CalendarEvent{Name: name, FireDay: fireDay, Description: description}
	if v, ok := asInt(raw["created_day"]); ok {
		ev.CreatedDay = &v
	}
	if v, ok := asInt(raw["created_hour"]); ok {
		ev.CreatedHour = &v
	}
	return ev, true
}

// ApplyCalendarUpdate applies a calendar_update document (shape
// {remove: []string, add: []object}) to the campaign's existing calendar
// list, exactly as engine.py::GameEngine._apply_calendar_update:
//  1. skip entirely if calendarUpdate is nil,
//  2. take existing entries as given (ApplyStateUpdate has already
//     normalized them through calendarEventsFromState),
//  3. remove by case-insensitive name match,
//  4. append normalized "add" entries, stamping created_day/created_hour
//     from the campaign's current game_time if the entry itself provided none,
//  5. if any adds occurred, deduplicate by name keeping the LAST occurrence
//     while preserving relative order of the kept entries,
//  6. cap at the last 10 entries.
func ApplyCalendarUpdate(existing []CalendarEvent, calendarUpdate map[string]any, currentDay, currentHour int) []CalendarEvent {
	if calendarUpdate == nil {
		return existing
	}

	result := make([]CalendarEvent, len(existing))
	copy(result, existing)

	if removeRaw, ok := calendarUpdate["remove"].([]any); ok {
		removeNames := make(map[string]bool, len(removeRaw))
		for _, r := range removeRaw {
			if s, ok := r.(string); ok {
				removeNames[strings.ToLower(strings.TrimSpace(s))] = true
			}
		}
		if len(removeNames) > 0 {
			filtered := result[:0:0]
			for _, ev := range result {
				if !removeNames[strings.ToLower(ev.Name)] {
					filtered = append(filtered, ev)
				}
			}
			result = filtered
		}
	}

	addedAny := false
	if addRaw, ok := calendarUpdate["add"].([]any); ok {
		for _, a := range addRaw {
			m, ok := a.(map[string]any)
			if !ok {
				continue
			}
			ev, ok := normalizeEvent(m, currentDay, currentHour)
			if !ok {
				continue
			}
			if ev.CreatedDay == nil {
				d := currentDay
				ev.CreatedDay = &d
			}
			if ev.CreatedHour == nil {
				h := currentHour
				ev.CreatedHour = &h
			}
			result = append(result, ev)
			addedAny = true
		}
	}

	if addedAny {
		result = dedupKeepLastPreserveOrder(result)
	}

	if len(result) > calendarMaxEntries {
		result = result[len(result)-calendarMaxEntries:]
	}
	return result
}

// dedupKeepLastPreserveOrder keeps, for each case-insensitive name, only its
// last occurrence, with the kept entries ordered by the position of that
// last occurrence — implemented by iterating in reverse and reversing back,
// exactly mirroring the Python original's approach.
func dedupKeepLastPreserveOrder(events []CalendarEvent) []CalendarEvent {
	seen := make(map[string]bool, len(events))
	keptReversed := make([]CalendarEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		key := strings.ToLower(events[i].Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		keptReversed = append(keptReversed, events[i])
	}
	out := make([]CalendarEvent, len(keptReversed))
	for i, ev := range keptReversed {
		out[len(keptReversed)-1-i] = ev
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
