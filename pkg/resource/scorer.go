package resource

import (
	"math"
	"sort"
)

// pickUnit implements spec §4.B admission step 3's multi-unit rule: among
// the allowed units, choose the one with maximum available-minus-reserved
// headroom. Adapted from the teacher's pkg/router/scorer.go, which scored
// whole workers on several weighted signals (VRAM headroom, queue depth,
// latency, temperature) to pick the best of the top-N; the spec names a
// single criterion for unit selection, so this keeps the "score every
// candidate, take the best" shape but drops the other terms.
func pickUnit(available, reserved map[string]float64, allowlist []string) (string, bool) {
	candidates := allowlist
	if candidates == nil {
		candidates = make([]string, 0, len(available))
		for u := range available {
			candidates = append(candidates, u)
		}
		sort.Strings(candidates)
	}

	best := ""
	bestFree := math.Inf(-1)
	found := false
	for _, u := range candidates {
		avail, ok := available[u]
		if !ok {
			continue
		}
		free := avail - reserved[u]
		if free > bestFree {
			bestFree = free
			best = u
			found = true
		}
	}
	return best, found
}
