package mutate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendSummary_AppendsWithBlankLineSeparator(t *testing.T) {
	out := AppendSummary("The party entered the cave.", "They found a torch.")
	assert.Equal(t, "The party entered the cave.\n\nThey found a torch.", out)
}

func TestAppendSummary_EmptyUpdateIsNoop(t *testing.T) {
	out := AppendSummary("existing text", "   ")
	assert.Equal(t, "existing text", out)
}

func TestAppendSummary_EmptyExistingStartsFresh(t *testing.T) {
	out := AppendSummary("", "first entry")
	assert.Equal(t, "first entry", out)
}

func TestAppendSummary_DoesNotTruncateLongSummaries(t *testing.T) {
	existing := strings.Repeat("a", 5000)
	out := AppendSummary(existing, "newest")
	assert.Len(t, out, 5000+len("\n\n")+len("newest"), "summary is unbounded text and must never be trimmed")
	assert.True(t, strings.HasSuffix(out, "newest"))
}
