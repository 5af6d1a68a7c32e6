package progress

import (
	"fmt"
	"strings"
)

// Merge combines two possibly overlapping event batches into one, keeping
// existing order and appending only incoming events not already present.
//
// The same logical step legitimately recurs (five recognition passes emit
// structurally similar events), so identity is never the step alone: it is
// the step plus whatever correlation fields the event carries. Only an event
// with no correlation fields at all falls back to the low-order timestamp
// digits, to avoid collapsing genuinely distinct repeats.
func Merge(existing, incoming []Event) []Event {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]Event, 0, len(existing)+len(incoming))
	for _, ev := range existing {
		k := mergeKey(ev)
		if !seen[k] {
			seen[k] = true
			merged = append(merged, ev)
		}
	}
	for _, ev := range incoming {
		k := mergeKey(ev)
		if !seen[k] {
			seen[k] = true
			merged = append(merged, ev)
		}
	}
	return merged
}

// mergeKey derives the composite de-duplication identity of an event.
func mergeKey(ev Event) string {
	parts := []string{ev.Step}
	correlated := false

	for _, metaKey := range []string{"pass", "passTotal", "url", "signature", "resultCount", "usedPass", "model"} {
		if v, ok := ev.Meta[metaKey]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", metaKey, v))
			correlated = true
		}
	}
	for _, ref := range ev.Artifacts {
		if ref.Filename != "" {
			parts = append(parts, "artifact="+ref.Filename)
			correlated = true
		}
	}

	if !correlated {
		// Last resort: truncated timestamp suffix, never the full ts alone.
		parts = append(parts, fmt.Sprintf("ts=%04d", ev.TS%10000))
	}
	return strings.Join(parts, "|")
}
