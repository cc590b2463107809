// Package intent assigns a search intent to keyword phrases using token markers.
package intent

import (
	"strings"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Rule maps a set of markers to an intent. Multi-word markers match
// consecutive tokens.
type Rule struct {
	Intent  types.Intent
	Markers []string
}

// DefaultRules are checked in order; the first rule with a matching marker wins
var DefaultRules = []Rule{
	{Intent: types.IntentTransactional, Markers: []string{
		"buy", "price", "discount", "purchase", "order", "coupon", "deal", "deals",
		"cheap", "signup", "sign up", "download",
	}},
	{Intent: types.IntentCommercial, Markers: []string{
		"best", "top", "vs", "versus", "review", "reviews", "compare", "alternatives", "comparison",
	}},
	{Intent: types.IntentInformational, Markers: []string{
		"how", "what", "why", "when", "where", "guide", "tips", "tutorial", "learn",
	}},
	{Intent: types.IntentNavigational, Markers: []string{
		"login", "log in", "website", "official", "homepage", "sign in",
	}},
}

// Classifier is a deterministic, total intent classifier
type Classifier struct {
	rules    []compiledRule
	fallback types.Intent
}

type compiledRule struct {
	intent  types.Intent
	markers [][]string
}

// New builds a classifier from rules. Phrases matching no rule are informational.
func New(rules []Rule) *Classifier {
	c := &Classifier{fallback: types.IntentInformational}
	for _, r := range rules {
		cr := compiledRule{intent: r.Intent}
		for _, m := range r.Markers {
			if tokens := tokenize(m); len(tokens) > 0 {
				cr.markers = append(cr.markers, tokens)
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Default returns a classifier over DefaultRules
func Default() *Classifier {
	return New(DefaultRules)
}

// Classify returns the intent of text
func (c *Classifier) Classify(text string) types.Intent {
	tokens := tokenize(text)
	for _, rule := range c.rules {
		for _, marker := range rule.markers {
			if containsSequence(tokens, marker) {
				return rule.intent
			}
		}
	}
	// domain-like tokens read as a site lookup
	for _, tok := range tokens {
		if strings.HasSuffix(tok, ".com") || strings.HasPrefix(tok, "www.") {
			return types.IntentNavigational
		}
	}
	return c.fallback
}

// tokenize lowercases text and splits it on anything but letters, digits and dots
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r == '.' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}

func containsSequence(tokens, marker []string) bool {
	if len(marker) > len(tokens) {
		return false
	}
	for i := 0; i+len(marker) <= len(tokens); i++ {
		match := true
		for j, m := range marker {
			if strings.Trim(tokens[i+j], ".") != m {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
