package generation

import (
	"strings"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Requirement gates a template group on a request flag
type Requirement int

const (
	// RequireNone groups are always expanded
	RequireNone Requirement = iota
	// RequireQuestions groups are expanded only when questions are requested
	RequireQuestions
	// RequireLongTail groups are expanded only when long-tail phrases are requested
	RequireLongTail
)

// seedPlaceholder is replaced with the normalized seed in every template
const seedPlaceholder = "{seed}"

// TemplateGroup is one category of fallback keyword templates
type TemplateGroup struct {
	Category  string
	Templates []string
	Requires  Requirement
}

// Enabled reports whether the group applies for the given flags
func (g TemplateGroup) Enabled(questions, longTail bool) bool {
	switch g.Requires {
	case RequireQuestions:
		return questions
	case RequireLongTail:
		return longTail
	default:
		return true
	}
}

var (
	commercialPrefixes = []string{"best", "top", "affordable", "cheap", "professional", "premium", "quality"}
	suffixes           = []string{
		"guide", "tips", "services", "online", "near me", "reviews", "cost", "price",
		"benefits", "comparison", "alternatives", "solutions", "help", "support",
	}
)

// DefaultTemplates is the fallback template table, expanded in order
var DefaultTemplates = []TemplateGroup{
	{Category: "exact", Templates: []string{"{seed}"}},
	{Category: "commercial", Templates: append(prefixed(commercialPrefixes), "buy {seed}", "{seed} deals")},
	{Category: "informational-question", Requires: RequireQuestions, Templates: []string{
		"how to {seed}", "what is {seed}", "why {seed}", "when to {seed}", "where to {seed}",
		"how does {seed} work", "what are the benefits of {seed}",
	}},
	{Category: "suffix", Templates: suffixed(suffixes)},
	{Category: "comparison", Templates: []string{
		"{seed} vs alternatives", "{seed} comparison chart", "{seed} pros and cons",
	}},
	{Category: "location", Templates: []string{
		"local {seed}", "{seed} in my area", "{seed} delivery",
	}},
	{Category: "long-tail", Requires: RequireLongTail, Templates: []string{
		"{seed} for beginners", "{seed} step by step", "{seed} complete guide",
		"{seed} free trial", "{seed} ultimate guide", "learn {seed}", "find {seed}", "get {seed}",
		"{seed} for small business", "{seed} on a budget",
	}},
	// combined tier so the table covers the largest requests with every flag off
	{Category: "combined", Templates: combined(commercialPrefixes, suffixes)},
}

func prefixed(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p+" "+seedPlaceholder)
	}
	return out
}

func suffixed(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, seedPlaceholder+" "+s)
	}
	return out
}

func combined(prefixes, suffixes []string) []string {
	out := make([]string, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, p+" "+seedPlaceholder+" "+s)
		}
	}
	return out
}

// Expand fills the enabled groups with seed and returns up to limit unique
// candidates in table order. A limit of zero or less returns every candidate.
func Expand(groups []TemplateGroup, seed string, questions, longTail bool, limit int) []types.KeywordCandidate {
	base := types.NormalizeKeyword(seed)
	if base == "" {
		return nil
	}

	var out []types.KeywordCandidate
	seen := make(map[string]bool)
	for _, group := range groups {
		if !group.Enabled(questions, longTail) {
			continue
		}
		for _, tmpl := range group.Templates {
			candidate, ok := types.NewCandidate(strings.ReplaceAll(tmpl, seedPlaceholder, base), types.OriginFallbackTemplate)
			if !ok || seen[candidate.Text] {
				continue
			}
			seen[candidate.Text] = true
			out = append(out, candidate)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
