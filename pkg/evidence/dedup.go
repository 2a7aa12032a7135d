package evidence

import (
	"sort"
	"time"
)

// Rescore combines the adapter-supplied base score with a recency term
// 1/(1+days_old). Records without a parseable date get a neutral recency
// of 1.0. The rewritten score is stored back on each record.
func Rescore(items []Evidence, now time.Time) {
	for i := range items {
		base := items[i].Score
		if base == 0 {
			base = 0.5
		}
		recency := 1.0
		if t, ok := ParseDate(items[i].Date); ok {
			daysOld := now.Sub(t).Hours() / 24
			if daysOld < 0 {
				daysOld = 0
			}
			recency = 1.0 / (1.0 + daysOld)
		}
		items[i].Score = base * recency
	}
}

// Dedup collapses records sharing a canonical URL. The occurrence with the
// highest score wins; ties go to the later insertion. First-appearance
// order of the surviving URLs is preserved, so re-running dedup on an
// already-deduped set is a no-op.
func Dedup(items []Evidence) []Evidence {
	type slot struct {
		index int
		ev    Evidence
	}
	seen := make(map[string]*slot, len(items))
	order := make([]string, 0, len(items))

	for _, ev := range items {
		key := CanonicalURL(ev.URL)
		if existing, ok := seen[key]; ok {
			if ev.Score >= existing.ev.Score {
				existing.ev = ev
			}
			continue
		}
		seen[key] = &slot{index: len(order), ev: ev}
		order = append(order, key)
	}

	out := make([]Evidence, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key].ev)
	}
	return out
}

// Truncate sorts descending by score (stable, so earlier insertion wins
// ties) and keeps at most max records. max <= 0 means no limit.
func Truncate(items []Evidence, max int) []Evidence {
	if max <= 0 || len(items) <= max {
		return items
	}
	sorted := make([]Evidence, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted[:max]
}
