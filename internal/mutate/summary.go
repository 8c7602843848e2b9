package mutate

import "strings"

// AppendSummary appends the trimmed update to the trimmed existing summary,
// separated by a blank line; an empty update leaves existing unchanged.
// `summary` is unbounded text (spec.md §3): the result is never truncated.
func AppendSummary(existing, update string) string {
	update = strings.TrimSpace(update)
	if update == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return update
	}
	return strings.TrimSpace(existing) + "\n\n" + update
}
