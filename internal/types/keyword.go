// Package types provides type definitions for structured data used throughout the keyword agent.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"unicode/utf8"
)

// Intent is the search intent category assigned to a keyword
type Intent string

const (
	// IntentInformational is a search for information or learning
	IntentInformational Intent = "informational"
	// IntentCommercial is research before a purchase
	IntentCommercial Intent = "commercial"
	// IntentTransactional is a search by someone ready to buy or act
	IntentTransactional Intent = "transactional"
	// IntentNavigational is a search for a specific site or brand page
	IntentNavigational Intent = "navigational"
)

// Intents returns every intent in descending order of commercial value
func Intents() []Intent {
	return []Intent{IntentTransactional, IntentCommercial, IntentInformational, IntentNavigational}
}

// Valid reports whether i is one of the known intents
func (i Intent) Valid() bool {
	switch i {
	case IntentInformational, IntentCommercial, IntentTransactional, IntentNavigational:
		return true
	}
	return false
}

// Origin records where a candidate phrase came from
type Origin string

const (
	// OriginGenerated marks phrases produced by the generative service
	OriginGenerated Origin = "generated"
	// OriginFallbackTemplate marks phrases expanded from the template table
	OriginFallbackTemplate Origin = "fallback-template"
)

// KeywordCandidate is a generated phrase before metrics and scoring are attached
type KeywordCandidate struct {
	Text           string `json:"keyword"`
	Origin         Origin `json:"origin"`
	WordCount      int    `json:"word_count"`
	CharacterCount int    `json:"character_count"`
}

// NewCandidate normalizes text and derives the word and character counts.
// The second return value is false when text normalizes to an empty phrase.
func NewCandidate(text string, origin Origin) (KeywordCandidate, bool) {
	normalized := NormalizeKeyword(text)
	if normalized == "" {
		return KeywordCandidate{}, false
	}
	return KeywordCandidate{
		Text:           normalized,
		Origin:         origin,
		WordCount:      len(strings.Fields(normalized)),
		CharacterCount: utf8.RuneCountInString(normalized),
	}, true
}

// NormalizeKeyword lowercases a phrase, trims it and collapses inner whitespace
func NormalizeKeyword(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// KeywordMetrics holds the measured or estimated search metrics for a candidate
type KeywordMetrics struct {
	SearchVolume     int     `json:"search_volume"`
	CompetitionScore float64 `json:"competition_score"`
	Difficulty       int     `json:"difficulty"`
	CPCEstimate      float64 `json:"cpc_estimate"`
	Intent           Intent  `json:"intent"`
}

// ScoredKeyword is a candidate with metrics and final scores attached
type ScoredKeyword struct {
	KeywordCandidate
	KeywordMetrics
	OpportunityScore   float64 `json:"opportunity_score"`
	RankingProbability float64 `json:"ranking_probability"`
}
