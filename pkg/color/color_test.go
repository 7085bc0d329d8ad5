package color

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestForKey_Stable(t *testing.T) {
	assert.Same(t, ForKey("board-1"), ForKey("board-1"))

	seen := map[*color.Color]bool{}
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[ForKey(key)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestPrintf_NoColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	Successf(&buf, "b1", "%d tasks compacted", 3)
	Failuref(&buf, "b2", "not found")
	assert.Equal(t, "[b1] 3 tasks compacted\n[b2] not found\n", buf.String())
}
