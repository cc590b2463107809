// Package metrics estimates search metrics for keyword candidates, from an
// optional provider with a deterministic synthesis model as the baseline.
package metrics

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Synthesis bounds
const (
	MinVolume      = 10
	MaxVolume      = 100000
	MinCompetition = 0.05
	MaxCompetition = 0.95
	MinCPC         = 0.05
	MaxCPC         = 50.0

	baseVolume      = 500.0
	baseCompetition = 0.5
	volumeJitter    = 0.15
	cpcJitter       = 0.10
	// difficultyCurve bends difficulty upward at high competition
	difficultyCurve = 1.15
)

// Market scales volume and cost per click for a country
type Market struct {
	VolumeFactor float64
	CPCFactor    float64
}

// Markets holds the factors for every supported country
var Markets = map[string]Market{
	"US": {VolumeFactor: 1.0, CPCFactor: 1.0},
	"GB": {VolumeFactor: 0.3, CPCFactor: 0.85},
	"CA": {VolumeFactor: 0.18, CPCFactor: 0.8},
	"AU": {VolumeFactor: 0.14, CPCFactor: 0.8},
	"IN": {VolumeFactor: 0.45, CPCFactor: 0.2},
}

var wordCountMultipliers = map[int]float64{1: 8.0, 2: 4.0, 3: 2.0, 4: 1.0, 5: 0.6}

const longPhraseMultiplier = 0.3

type boost struct {
	terms  []string
	factor float64
}

var volumeBoosts = []boost{
	{terms: []string{"best", "top", "how to", "what is", "review", "buy", "free"}, factor: 2.5},
	{terms: []string{"guide", "tips", "help", "learn", "find", "get"}, factor: 1.8},
	{terms: []string{"price", "cost", "buy", "purchase", "deal", "discount"}, factor: 1.5},
	{terms: []string{"near me"}, factor: 0.7},
	{terms: []string{"insurance", "finance", "health", "tech", "education"}, factor: 1.3},
}

var competitionAdjustments = []boost{
	{terms: []string{"insurance", "lawyer", "mortgage", "loan", "credit card", "casino", "forex"}, factor: 0.4},
	{terms: []string{"software", "tool", "course", "training", "marketing", "seo"}, factor: 0.2},
	{terms: []string{"best", "top", "buy", "price", "cost"}, factor: 0.15},
	{terms: []string{"how to", "what is", "why", "when", "where"}, factor: -0.2},
}

var intentCompetitionBias = map[types.Intent]float64{
	types.IntentTransactional: 0.05,
	types.IntentCommercial:    0.03,
	types.IntentInformational: 0,
	types.IntentNavigational:  -0.05,
}

var intentBaseCPC = map[types.Intent]float64{
	types.IntentTransactional: 2.5,
	types.IntentCommercial:    1.8,
	types.IntentInformational: 0.8,
	types.IntentNavigational:  0.6,
}

// first matching tier wins
var cpcIndustryFactors = []boost{
	{terms: []string{"insurance", "lawyer", "loan", "mortgage"}, factor: 15.0},
	{terms: []string{"software", "course", "training"}, factor: 5.0},
	{terms: []string{"buy", "purchase", "price"}, factor: 1.5},
}

// Synthesize derives metrics from the phrase alone. The result depends only
// on its arguments, so repeated calls agree.
func Synthesize(text string, wordCount int, intent types.Intent, country string) types.KeywordMetrics {
	if !intent.Valid() {
		intent = types.IntentInformational
	}
	market, ok := Markets[strings.ToUpper(country)]
	if !ok {
		market = Markets[types.DefaultCountry]
	}
	padded := " " + types.NormalizeKeyword(text) + " "

	competition := synthCompetition(padded, wordCount, intent)
	return types.KeywordMetrics{
		SearchVolume:     synthVolume(padded, wordCount, market, text, country),
		CompetitionScore: competition,
		Difficulty:       Difficulty(competition),
		CPCEstimate:      synthCPC(padded, wordCount, intent, market, text, country),
		Intent:           intent,
	}
}

func synthVolume(padded string, wordCount int, market Market, text, country string) int {
	multiplier, ok := wordCountMultipliers[wordCount]
	if !ok {
		multiplier = longPhraseMultiplier
	}
	for _, b := range volumeBoosts {
		if containsAny(padded, b.terms) {
			multiplier *= b.factor
		}
	}
	volume := baseVolume * multiplier * market.VolumeFactor * (1 + volumeJitter*jitter(text, country, "volume"))
	return int(math.Round(clamp(volume, MinVolume, MaxVolume)))
}

func synthCompetition(padded string, wordCount int, intent types.Intent) float64 {
	competition := baseCompetition
	for _, adj := range competitionAdjustments {
		if containsAny(padded, adj.terms) {
			competition += adj.factor
		}
	}
	switch {
	case wordCount >= 4:
		competition -= 0.25
	case wordCount >= 3:
		competition -= 0.15
	}
	competition += intentCompetitionBias[intent]
	return round(clamp(competition, MinCompetition, MaxCompetition), 2)
}

func synthCPC(padded string, wordCount int, intent types.Intent, market Market, text, country string) float64 {
	cpc := intentBaseCPC[intent]
	for _, tier := range cpcIndustryFactors {
		if containsAny(padded, tier.terms) {
			cpc *= tier.factor
			break
		}
	}
	switch {
	case wordCount >= 4:
		cpc *= 0.6
	case wordCount >= 3:
		cpc *= 0.8
	}
	cpc *= market.CPCFactor * (1 + cpcJitter*jitter(text, country, "cpc"))
	return round(clamp(cpc, MinCPC, MaxCPC), 2)
}

// Difficulty maps competition in [0,1] onto a 1-100 scale, monotonically
func Difficulty(competition float64) int {
	if math.IsNaN(competition) {
		competition = 0
	}
	c := clamp(competition, 0, 1)
	return int(math.Round(1 + 99*math.Pow(c, difficultyCurve)))
}

// jitter returns a stable value in [-1, 1] for the phrase and country
func jitter(text, country, salt string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(types.NormalizeKeyword(text)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.ToUpper(country)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(salt))
	return float64(h.Sum64()%20001)/10000 - 1
}

// containsAny matches whole words or phrases inside a space-padded phrase
func containsAny(padded string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(padded, " "+term+" ") {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
