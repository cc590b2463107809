package research

import (
	"sort"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Rank drops repeated phrases (first occurrence wins), orders by descending
// opportunity with ties kept in input order, and truncates to limit
func Rank(scored []types.ScoredKeyword, limit int) []types.ScoredKeyword {
	seen := make(map[string]bool, len(scored))
	ranked := make([]types.ScoredKeyword, 0, len(scored))
	for _, kw := range scored {
		text := types.NormalizeKeyword(kw.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		ranked = append(ranked, kw)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].OpportunityScore > ranked[j].OpportunityScore
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
