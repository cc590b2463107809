// Package scoring turns keyword metrics into an opportunity score and a
// first-page ranking probability.
package scoring

import (
	"math"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Default weights for scoring components
const (
	volumeWeight      = 0.35
	competitionWeight = 0.35
	difficultyWeight  = 0.20
	intentWeight      = 0.10

	// DefaultVolumeCeiling is the volume that earns the full volume component
	DefaultVolumeCeiling = 5000
)

// Ranking probability curve
const (
	probabilityFloor       = 0.05
	probabilitySpan        = 0.90
	probabilityDiffCurve   = 1.3
	probabilityCompPenalty = 0.6
)

// Weights are the relative contributions of each opportunity component
type Weights struct {
	Volume      float64
	Competition float64
	Difficulty  float64
	Intent      float64
}

// DefaultWeights returns the standard component weights
func DefaultWeights() Weights {
	return Weights{
		Volume:      volumeWeight,
		Competition: competitionWeight,
		Difficulty:  difficultyWeight,
		Intent:      intentWeight,
	}
}

// normalized scales the weights to sum to 1. Negative weights count as zero;
// all-zero weights fall back to the defaults.
func (w Weights) normalized() Weights {
	w.Volume = math.Max(0, nanToZero(w.Volume))
	w.Competition = math.Max(0, nanToZero(w.Competition))
	w.Difficulty = math.Max(0, nanToZero(w.Difficulty))
	w.Intent = math.Max(0, nanToZero(w.Intent))
	sum := w.Volume + w.Competition + w.Difficulty + w.Intent
	if sum == 0 || math.IsInf(sum, 0) {
		return DefaultWeights()
	}
	return Weights{
		Volume:      w.Volume / sum,
		Competition: w.Competition / sum,
		Difficulty:  w.Difficulty / sum,
		Intent:      w.Intent / sum,
	}
}

// DefaultIntentWeights rates each intent by commercial value
func DefaultIntentWeights() map[types.Intent]float64 {
	return map[types.Intent]float64{
		types.IntentTransactional: 1.0,
		types.IntentCommercial:    0.8,
		types.IntentInformational: 0.6,
		types.IntentNavigational:  0.4,
	}
}

// Scorer is a pure function over metrics. It is safe for concurrent use.
type Scorer struct {
	weights       Weights
	intentWeights map[types.Intent]float64
	volumeCeiling float64
}

// Option configures a Scorer
type Option func(*Scorer)

// WithWeights overrides the component weights
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w.normalized() }
}

// WithVolumeCeiling sets the volume that earns the full volume component
func WithVolumeCeiling(ceiling int) Option {
	return func(s *Scorer) {
		if ceiling > 0 {
			s.volumeCeiling = float64(ceiling)
		}
	}
}

// WithIntentWeights overrides the per-intent weights; values are clamped to [0, 1]
func WithIntentWeights(weights map[types.Intent]float64) Option {
	return func(s *Scorer) {
		merged := DefaultIntentWeights()
		for intent, w := range weights {
			merged[intent] = clamp(w, 0, 1)
		}
		s.intentWeights = merged
	}
}

// New creates a Scorer
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:       DefaultWeights(),
		intentWeights: DefaultIntentWeights(),
		volumeCeiling: DefaultVolumeCeiling,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the opportunity score in [0, 100] rounded to 0.1 and the
// ranking probability in [0, 1] rounded to 0.01
func (s *Scorer) Score(m types.KeywordMetrics) (opportunity, probability float64) {
	return s.Opportunity(m), RankingProbability(m.CompetitionScore, m.Difficulty)
}

// Opportunity computes the weighted opportunity score
func (s *Scorer) Opportunity(m types.KeywordMetrics) float64 {
	volume := clamp(float64(m.SearchVolume), 0, s.volumeCeiling) / s.volumeCeiling
	competition := clamp(m.CompetitionScore, 0, 1)
	difficulty := normDifficulty(m.Difficulty)
	intent := s.intentWeights[m.Intent]

	score := 100 * (s.weights.Volume*volume +
		s.weights.Competition*(1-competition) +
		s.weights.Difficulty*(1-difficulty) +
		s.weights.Intent*intent)
	return round(clamp(score, 0, 100), 1)
}

// RankingProbability estimates the chance of a first-page ranking. It falls
// strictly as competition or difficulty rises.
func RankingProbability(competition float64, difficulty int) float64 {
	c := clamp(competition, 0, 1)
	d := normDifficulty(difficulty)
	p := probabilityFloor + probabilitySpan*math.Pow(1-d, probabilityDiffCurve)*(1-probabilityCompPenalty*c)
	return round(clamp(p, 0, 1), 2)
}

// Apply scores a measured candidate
func (s *Scorer) Apply(c types.KeywordCandidate, m types.KeywordMetrics) types.ScoredKeyword {
	opportunity, probability := s.Score(m)
	return types.ScoredKeyword{
		KeywordCandidate:   c,
		KeywordMetrics:     m,
		OpportunityScore:   opportunity,
		RankingProbability: probability,
	}
}

func normDifficulty(d int) float64 {
	return clamp(float64(d-1)/99, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
