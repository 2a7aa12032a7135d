package executor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scopeworks/scout/pkg/evidence"
)

// figureRe pairs a word with a nearby numeric token, e.g. "revenue $4.2"
// or "layoffs: 12,000".
var figureRe = regexp.MustCompile(`(?i)([a-z][a-z_-]{2,})[:\s]+\$?(\d[\d,]*(?:\.\d+)?)`)

// runQC applies the strategy's advisory quality checks. Findings append
// to limitations and never abort the run.
func runQC(st *state, registry []Citation) {
	checkStructure(st)
	checkRecency(st, registry)
	checkQuorum(st, registry)
	checkNumericContradictions(st, registry)
}

// checkStructure verifies every declared briefing section name appears
// somewhere in the produced sections.
func checkStructure(st *state) {
	for _, name := range st.strat.Finalize.Sections {
		found := false
		for _, section := range st.sections {
			if strings.Contains(strings.ToLower(section), strings.ToLower(name)) {
				found = true
				break
			}
		}
		if !found {
			st.limitations = append(st.limitations,
				fmt.Sprintf("declared section %q is missing from the briefing", name))
		}
	}
}

// checkRecency flags cited sources older than the strategy's recency
// window.
func checkRecency(st *state, registry []Citation) {
	window := st.strat.Filters.Recency
	if window == "" {
		return
	}
	maxDays := float64(windowDays(window))

	var stale []string
	for _, c := range registry {
		t, ok := evidence.ParseDate(c.Date)
		if !ok {
			continue
		}
		if st.now.Sub(t).Hours()/24 > maxDays {
			stale = append(stale, c.URL)
		}
	}
	if len(stale) > 0 {
		st.limitations = append(st.limitations,
			fmt.Sprintf("%d cited source(s) fall outside the %s recency window: %s",
				len(stale), window, strings.Join(stale, ", ")))
	}
}

// checkQuorum flags runs citing fewer distinct sources than the strategy
// requires.
func checkQuorum(st *state, registry []Citation) {
	min := st.strat.Quorum.MinSources
	if min <= 0 {
		return
	}
	if len(registry) < min {
		st.limitations = append(st.limitations,
			fmt.Sprintf("only %d distinct source(s) cited; strategy requires at least %d", len(registry), min))
	}
}

// checkNumericContradictions pings on the same figure name carrying
// different values across citation snippets. Heuristic only.
func checkNumericContradictions(st *state, registry []Citation) {
	figures := make(map[string]map[string]struct{})
	for _, c := range registry {
		for _, m := range figureRe.FindAllStringSubmatch(c.Snippet, -1) {
			name := strings.ToLower(m[1])
			if figures[name] == nil {
				figures[name] = make(map[string]struct{})
			}
			figures[name][strings.ReplaceAll(m[2], ",", "")] = struct{}{}
		}
	}
	names := make([]string, 0, len(figures))
	for name := range figures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(figures[name]) > 1 {
			st.limitations = append(st.limitations,
				fmt.Sprintf("sources disagree on %q (%d distinct values); verify before relying on this figure", name, len(figures[name])))
		}
	}
}
